package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// errNoSheets is returned for workbooks without a single worksheet.
var errNoSheets = errors.New("spreadsheet has no sheets")

// spreadsheetToCSV reads the first sheet of a workbook and writes its cell
// grid as comma separated text. Only the first sheet is ever read.
func spreadsheetToCSV(data []byte) ([]byte, string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, "", errNoSheets
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, "", fmt.Errorf("read spreadsheet sheet %q: %w", sheet, err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, "", fmt.Errorf("convert spreadsheet row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", fmt.Errorf("convert spreadsheet: %w", err)
	}

	return buf.Bytes(), sheet, nil
}
