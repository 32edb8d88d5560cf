// Package ingest turns uploaded log exports into decoded tables.
//
// Spreadsheets are reduced to comma separated text from their first sheet,
// so every upload goes through the same row parser. The parser sniffs the
// delimiter, treats the first non-blank line as the header, drops blank
// lines and coerces cells to numbers, booleans or nil where that is
// unambiguous.
package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/JonMunkholm/loglens/internal/core"
	"github.com/JonMunkholm/loglens/internal/logging"
)

// DefaultMaxFileSize bounds uploads when the caller does not configure a limit.
const DefaultMaxFileSize = 100 << 20

// sniffWindow is how much of a text upload is inspected for binary content.
const sniffWindow = 8 << 10

// candidateDelimiters are tried in order; ties go to the earlier one.
var candidateDelimiters = []rune{',', ';', '\t', '|'}

var errNoHeader = errors.New("no header row found")

// Decoder decodes uploads into tables. The zero value is usable.
type Decoder struct {
	MaxFileSize int64
}

// NewDecoder returns a decoder that rejects uploads larger than maxFileSize.
func NewDecoder(maxFileSize int64) *Decoder {
	return &Decoder{MaxFileSize: maxFileSize}
}

// Decode parses the upload into a table. It fails with a decode error when
// the bytes are neither a readable spreadsheet nor delimited text.
func (d *Decoder) Decode(ctx context.Context, upload core.RawUpload) (*core.Table, error) {
	const op = "decode"

	limit := d.MaxFileSize
	if limit <= 0 {
		limit = DefaultMaxFileSize
	}
	if int64(len(upload.Data)) > limit {
		return nil, core.NewDecodeError(op, fmt.Errorf("file too large: %d bytes exceeds %d", len(upload.Data), limit))
	}
	if err := ctx.Err(); err != nil {
		return nil, core.NewDecodeError(op, err)
	}

	logger := logging.WithFields(ctx, "file", upload.FileName, "bytes", len(upload.Data))

	text := upload.Data
	delim := rune(0)
	if format := core.SpreadsheetFormat(upload.FileName); format != "" {
		converted, sheet, err := spreadsheetToCSV(upload.Data)
		if err != nil {
			return nil, core.NewDecodeError(op, fmt.Errorf("%s spreadsheet: %w", format, err))
		}
		logger.Debug("spreadsheet converted", "format", format, "sheet", sheet)
		text = converted
		delim = ','
	} else {
		head := text
		if len(head) > sniffWindow {
			head = head[:sniffWindow]
		}
		if bytes.IndexByte(head, 0) >= 0 {
			return nil, core.NewDecodeError(op, errors.New("binary content is not delimited text"))
		}
		if upload.Ext() == ".tsv" {
			delim = '\t'
		}
	}

	table, err := parseDelimited(text, delim)
	if err != nil {
		return nil, core.NewDecodeError(op, err)
	}

	logger.Debug("upload decoded", "columns", len(table.Header), "rows", len(table.Rows))
	return table, nil
}

// parseDelimited is the single row-parsing path. A zero delim is sniffed
// from the first non-blank line.
func parseDelimited(data []byte, delim rune) (*core.Table, error) {
	if delim == 0 {
		delim = sniffDelimiter(data)
	}

	r := csv.NewReader(newTextReader(bytes.NewReader(data)))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	table := &core.Table{}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse delimited text: %w", err)
		}
		if isBlankRecord(record) {
			continue
		}

		if table.Header == nil {
			table.Header = buildHeader(record)
			continue
		}
		table.Rows = append(table.Rows, buildRow(table.Header, record))
	}

	if table.Header == nil {
		return nil, errNoHeader
	}
	return table, nil
}

// sniffDelimiter picks the candidate that occurs most often outside quotes
// on the first non-blank line.
func sniffDelimiter(data []byte) rune {
	line := firstNonBlankLine(data)

	counts := make(map[rune]int, len(candidateDelimiters))
	inQuotes := false
	for _, c := range line {
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes {
			counts[c]++
		}
	}

	best, bestCount := ',', 0
	for _, c := range candidateDelimiters {
		if counts[c] > bestCount {
			best, bestCount = c, counts[c]
		}
	}
	return best
}

func firstNonBlankLine(data []byte) string {
	data = bytes.TrimPrefix(data, utf8BOM)
	for len(data) > 0 {
		line := data
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			data = nil
		}
		if s := strings.TrimSpace(string(line)); s != "" {
			return s
		}
	}
	return ""
}

func isBlankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// buildHeader trims names, fills empty ones and disambiguates duplicates
// with the lowest free numeric suffix (Name, Name_1, Name_2). A suffixed
// name never collides with a column already present.
func buildHeader(record []string) []string {
	header := make([]string, len(record))
	used := make(map[string]bool, len(record))
	next := make(map[string]int, len(record))
	for i, name := range record {
		name = strings.TrimSpace(name)
		if name == "" {
			name = "Column " + strconv.Itoa(i+1)
		}
		if used[name] {
			base := name
			for n := next[base] + 1; ; n++ {
				name = base + "_" + strconv.Itoa(n)
				if !used[name] {
					next[base] = n
					break
				}
			}
		}
		used[name] = true
		header[i] = name
	}
	return header
}

// buildRow keys a record by header. Short records yield sparse rows; cells
// past the last header column are ignored.
func buildRow(header, record []string) core.Row {
	n := len(record)
	if n > len(header) {
		n = len(header)
	}
	row := make(core.Row, n)
	for i := 0; i < n; i++ {
		row[header[i]] = coerceCell(record[i])
	}
	return row
}
