package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID_UniqueAndOrdered(t *testing.T) {
	const n = 2000
	seen := make(map[SessionID]bool, n)
	prev := NewSessionID()
	for i := 0; i < n; i++ {
		id := NewSessionID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
		assert.LessOrEqual(t, prev.String()[:13], id.String()[:13], "v7 ids carry a millisecond prefix")
		prev = id
	}
}

func TestParseSessionID(t *testing.T) {
	valid := NewSessionID()

	tests := []struct {
		name    string
		input   string
		want    SessionID
		wantErr bool
	}{
		{"canonical", valid.String(), valid, false},
		{"padded", "  " + valid.String() + "\n", valid, false},
		{"upper case", strings.ToUpper(valid.String()), valid, false},
		{"empty", "", "", true},
		{"blank", "   ", "", true},
		{"not a uuid", "session-1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSessionID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
