package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gostudio/domain/core"
	"gostudio/ports"
)

func openMemory(t *testing.T) *SessionStore {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSessionStore_SaveLoad(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()

	id := core.NewSessionID()
	at := time.Date(2025, 3, 1, 9, 30, 0, 123456000, time.UTC)
	snap := ports.SessionSnapshot{ID: id, Phase: "LANDING", Data: []byte(`{"id":"x"}`), UpdatedAt: at}
	require.NoError(t, store.Save(ctx, snap))

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, snap, *loaded)
}

func TestSessionStore_SaveReplaces(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()
	id := core.NewSessionID()
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, ports.SessionSnapshot{ID: id, Phase: "LANDING", Data: []byte(`{}`), UpdatedAt: at}))
	require.NoError(t, store.Save(ctx, ports.SessionSnapshot{ID: id, Phase: "PROFILE_READY", Data: []byte(`{"v":2}`), UpdatedAt: at.Add(time.Minute)}))

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "PROFILE_READY", loaded.Phase)
	assert.JSONEq(t, `{"v":2}`, string(loaded.Data))
	assert.Equal(t, at.Add(time.Minute), loaded.UpdatedAt)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSessionStore_LoadMissing(t *testing.T) {
	store := openMemory(t)
	_, err := store.Load(context.Background(), core.NewSessionID())
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	store := openMemory(t)
	ctx := context.Background()
	id := core.NewSessionID()

	require.NoError(t, store.Save(ctx, ports.SessionSnapshot{ID: id, Phase: "LANDING", Data: []byte(`{}`), UpdatedAt: time.Now().UTC()}))
	require.NoError(t, store.Delete(ctx, id))
	require.NoError(t, store.Delete(ctx, id))

	_, err := store.Load(ctx, id)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestOpen_ReopensExistingFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "studio.db")
	id := core.NewSessionID()

	first, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, ports.SessionSnapshot{ID: id, Phase: "LANDING", Data: []byte(`{}`), UpdatedAt: time.Now().UTC()}))
	require.NoError(t, first.Close())

	second, err := Open(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	loaded, err := second.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "LANDING", loaded.Phase)

	var versions []int
	require.NoError(t, second.db.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations ORDER BY version`))
	assert.Equal(t, []int{1, 2}, versions)
}
