package tabular

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"gostudio/domain/core"
	"gostudio/domain/table"
)

const ordersCSV = "\xef\xbb\xbfOrder ID,Region,Revenue,Shipped,Ordered At\n" +
	"1001,West,\"$1,200.50\",yes,2024-01-05\n" +
	"1002,East,(300),no,2024-01-06\n" +
	"1003,N/A,450,yes,01/07/2024\n" +
	"1004,West,,NA,2024-01-08\n" +
	"1005,South,980,no,2024-01-09\n"

func load(t *testing.T, name, content string) (*table.Table, error) {
	t.Helper()
	return NewLoader().Load(context.Background(), name, strings.NewReader(content))
}

func TestLoad_CSVInfersKinds(t *testing.T) {
	tbl, err := load(t, "orders.csv", ordersCSV)
	require.NoError(t, err)

	assert.Equal(t, []string{"order id", "region", "revenue", "shipped", "ordered at"}, tbl.Names())
	assert.Equal(t, 5, tbl.NumRows())
	assert.Equal(t, uint64(1), tbl.Version)
	assert.Equal(t, "orders.csv", tbl.Source)
	assert.Empty(t, tbl.Warnings)

	revenue, _ := tbl.Column("revenue")
	assert.Equal(t, table.KindFloat, revenue.Kind)
	assert.Equal(t, 1200.5, revenue.Floats[0])
	assert.Equal(t, -300.0, revenue.Floats[1])
	assert.True(t, revenue.IsNull(3))

	region, _ := tbl.Column("region")
	assert.Equal(t, table.KindString, region.Kind)
	assert.True(t, region.IsNull(2))

	shipped, _ := tbl.Column("shipped")
	assert.Equal(t, table.KindBool, shipped.Kind)
	assert.Equal(t, 1, shipped.NullCount())

	ordered, _ := tbl.Column("ordered at")
	assert.Equal(t, table.KindTime, ordered.Kind)
	assert.Equal(t, time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC), ordered.Times[2])

	id, _ := tbl.Column("order id")
	assert.Equal(t, table.KindFloat, id.Kind)
}

func TestLoad_TSV(t *testing.T) {
	tbl, err := load(t, "scores.tsv", "team\tscore\nred\t3\nblue\t5\n")
	require.NoError(t, err)
	score, _ := tbl.Column("score")
	assert.Equal(t, []float64{3, 5}, score.Floats)
}

func TestLoad_CoercionWarnings(t *testing.T) {
	var b strings.Builder
	b.WriteString("amount\n")
	for i := 0; i < 9; i++ {
		b.WriteString("10\n")
	}
	b.WriteString("ten\n")

	tbl, err := load(t, "amounts.csv", b.String())
	require.NoError(t, err)

	amount, _ := tbl.Column("amount")
	assert.Equal(t, table.KindFloat, amount.Kind)
	assert.Equal(t, 1, amount.NullCount())
	require.Len(t, tbl.Warnings, 1)
	assert.Equal(t, "amount", tbl.Warnings[0].Column)
	assert.Contains(t, tbl.Warnings[0].Message, `"ten"`)
}

func TestLoad_BelowThresholdStaysText(t *testing.T) {
	tbl, err := load(t, "mixed.csv", "code\n1\n2\nA3\nB4\nC5\n")
	require.NoError(t, err)
	code, _ := tbl.Column("code")
	assert.Equal(t, table.KindString, code.Kind)
	assert.Zero(t, code.NullCount())
	assert.Empty(t, tbl.Warnings)
}

func TestLoad_RaggedRowsWithinTolerance(t *testing.T) {
	var b strings.Builder
	b.WriteString("a,b\n")
	for i := 0; i < 30; i++ {
		b.WriteString("x,1\n")
	}
	b.WriteString("y\n")

	tbl, err := load(t, "ragged.csv", b.String())
	require.NoError(t, err)
	assert.Equal(t, 31, tbl.NumRows())
	b2, _ := tbl.Column("b")
	assert.True(t, b2.IsNull(30))
	require.Len(t, tbl.Warnings, 1)
	assert.Contains(t, tbl.Warnings[0].Message, "1 rows")
}

func TestLoad_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Customer", "Spend", "Active"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"acme", 120.5, "yes"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"globex", 80, "no"}))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	tbl, err := NewLoader().Load(context.Background(), "customers.xlsx", &buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"customer", "spend", "active"}, tbl.Names())
	spend, _ := tbl.Column("spend")
	assert.Equal(t, []float64{120.5, 80}, spend.Floats)
	active, _ := tbl.Column("active")
	assert.Equal(t, []bool{true, false}, active.Bools)
}

func TestLoad_CorruptedUploads(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		reason  string
	}{
		{"empty", "a.csv", "  \n", "empty"},
		{"header only", "a.csv", "a,b\n", "no data rows"},
		{"blank header", "a.csv", "a,,c\n1,2,3\n", "no header"},
		{"duplicate header", "a.csv", "a,A\n1,2\n", "duplicate header"},
		{"ragged", "a.csv", "a,b\n1\n2\n3,4\n", "do not match"},
		{"extension", "a.json", `{"a":1}`, "unsupported file extension"},
		{"bad workbook", "a.xlsx", "not a zip", "Excel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.file, tt.content)
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrCorruptedUpload)
			assert.False(t, core.IsRecoverable(err))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}
