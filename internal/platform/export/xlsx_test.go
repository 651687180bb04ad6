package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	err := WriteXLSX(&buf, Sheet{
		Name:    "Claims Aging",
		Headers: []string{"Claim", "Payer", "Billed", "Submitted"},
		Rows: [][]interface{}{
			{"CLM-2026-000001", "Acme Health", 250.0, time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)},
			{"CLM-2026-000002", "Umbrella Ins", 90.5, time.Date(2026, 8, 2, 14, 30, 0, 0, time.UTC)},
		},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Claims Aging"}, f.GetSheetList())

	got, err := f.GetCellValue("Claims Aging", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Claim", got)

	got, err = f.GetCellValue("Claims Aging", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Acme Health", got)

	got, err = f.GetCellValue("Claims Aging", "D3")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-02 14:30", got)
}

func TestWriteXLSXMultipleSheets(t *testing.T) {
	var buf bytes.Buffer
	err := WriteXLSX(&buf,
		Sheet{Name: "Revenue", Headers: []string{"Month", "Collected"}},
		Sheet{Name: "No-Shows", Headers: []string{"Provider", "Count"}},
	)
	require.NoError(t, err)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.ElementsMatch(t, []string{"Revenue", "No-Shows"}, f.GetSheetList())
}

func TestWriteXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := WriteXLSX(&buf)
	assert.Error(t, err)
}
