// Package ingest turns uploaded spreadsheet bytes into an ordered batch of
// raw stock records. It performs no I/O beyond reading the given bytes.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/safar/qr-stock/internal/apperr"
	"github.com/xuri/excelize/v2"
)

// RequiredColumns must all be present in the header row.
var RequiredColumns = []string{"name", "quantity", "price", "category"}

// Record is one data row. Line is its 1-based position in the sheet,
// header included, so messages can point at the row the user sees.
type Record struct {
	Line   int
	Fields map[string]string
}

// Get returns the raw cell text of col, or "" when the column is absent.
func (r Record) Get(col string) string {
	return r.Fields[col]
}

var zipMagic = []byte("PK\x03\x04")

// Parse reads the first sheet of an XLSX workbook, or a CSV document, and
// returns one Record per non-blank data row.
func Parse(data []byte, filename string) ([]Record, error) {
	if len(data) == 0 {
		return nil, apperr.Validation("uploaded file is empty")
	}

	var (
		rows [][]string
		err  error
	)
	switch {
	case bytes.HasPrefix(data, zipMagic):
		rows, err = readWorkbook(data)
	case isWorkbookName(filename):
		return nil, apperr.Validation("unreadable spreadsheet: %s is not an xlsx workbook", filepath.Base(filename))
	default:
		rows, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}

	return toRecords(rows)
}

func isWorkbookName(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm", ".xls":
		return true
	}
	return false
}

func readWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "unreadable spreadsheet")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Validation("spreadsheet has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "unreadable spreadsheet")
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, err, "malformed csv")
		}
		// The reader drops empty lines; keep rows aligned with line numbers.
		line, _ := r.FieldPos(0)
		for len(rows) < line-1 {
			rows = append(rows, nil)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func toRecords(rows [][]string) ([]Record, error) {
	if len(rows) == 0 {
		return nil, apperr.Validation("uploaded file is empty")
	}

	header := make([]string, len(rows[0]))
	present := make(map[string]bool, len(header))
	for i, cell := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(cell))
		present[header[i]] = true
	}

	var missing []string
	for _, col := range RequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("missing required columns: %s", strings.Join(missing, ", "))
	}

	records := make([]Record, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		fields := make(map[string]string, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(row) {
				fields[col] = strings.TrimSpace(row[i])
			} else {
				fields[col] = ""
			}
		}
		records = append(records, Record{Line: n + 2, Fields: fields})
	}

	if len(records) == 0 {
		return nil, apperr.Validation("uploaded file is empty")
	}
	return records, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
