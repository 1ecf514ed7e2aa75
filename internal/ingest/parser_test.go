package ingest

import (
	"testing"

	"github.com/safar/qr-stock/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func workbook(t *testing.T, rows [][]any, extraSheet bool) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}

	if extraSheet {
		_, err := f.NewSheet("Archive")
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Archive", "A1", &[]any{"unrelated"}))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParseWorkbook(t *testing.T) {
	data := workbook(t, [][]any{
		{"Name", "Quantity", "Price", "Category", "Supplier"},
		{"Rice", 10, 2.5, "Grocery", "Acme"},
		{},
		{"Soap", 3, 1, "Hygiene"},
	}, true)

	records, err := Parse(data, "stock.xlsx")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, Record{
		Line:   2,
		Fields: map[string]string{"name": "Rice", "quantity": "10", "price": "2.5", "category": "Grocery", "supplier": "Acme"},
	}, records[0])
	assert.Equal(t, "Soap", records[1].Get("name"))
	assert.Equal(t, "", records[1].Get("supplier"))
	assert.Equal(t, 4, records[1].Line, "blank rows still count towards the line number")
}

func TestParseWorkbookMissingColumns(t *testing.T) {
	data := workbook(t, [][]any{
		{"name", "quantity"},
		{"Rice", 10},
	}, false)

	_, err := Parse(data, "stock.xlsx")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "price, category")
}

func TestParseWorkbookHeaderOnly(t *testing.T) {
	data := workbook(t, [][]any{
		{"name", "quantity", "price", "category"},
	}, false)

	_, err := Parse(data, "stock.xlsx")
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "empty")
}

func TestParseCSV(t *testing.T) {
	data := []byte("\xef\xbb\xbfname,quantity,price,category\nRice,10,2.5,Grocery\n,,,\n\"Green, Tea\",4,3.10,Drinks\n")

	records, err := Parse(data, "stock.csv")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Green, Tea", records[1].Get("name"))
	assert.Equal(t, "3.10", records[1].Get("price"))
	assert.Equal(t, 2, records[0].Line)
	assert.Equal(t, 4, records[1].Line)
}

func TestParseCSVLineNumbersSurviveEmptyLines(t *testing.T) {
	data := []byte("name,quantity,price,category\n\nRice,10,2.5,Grocery\n\n\nTea,1,1,Drinks\n")

	records, err := Parse(data, "stock.csv")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 3, records[0].Line)
	assert.Equal(t, 6, records[1].Line)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		filename string
		contains string
	}{
		{"empty bytes", nil, "stock.xlsx", "empty"},
		{"not a workbook", []byte("name,quantity"), "stock.xlsx", "not an xlsx"},
		{"corrupt zip", []byte("PK\x03\x04garbage"), "stock.xlsx", "unreadable"},
		{"malformed csv", []byte("name,quantity,price,category\n\"Rice,1,2,x\n"), "stock.csv", "malformed csv"},
		{"missing columns csv", []byte("title,qty\nRice,1\n"), "stock.csv", "name, quantity, price, category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data, tt.filename)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}
