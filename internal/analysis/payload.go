package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JonMunkholm/loglens/internal/core"
)

// DefaultMaxPayloadBytes caps encoded requests when no limit is configured.
const DefaultMaxPayloadBytes = 64 << 20

// Payload is the wire body sent to the analysis service. FileData is a
// base64 string for spreadsheets and an array of row objects otherwise.
type Payload struct {
	FileName string          `json:"fileName"`
	FileData json.RawMessage `json:"fileData"`
	FileType string          `json:"fileType"`
}

// BuildPayload encodes req for transport. It fails with a payload error
// when the request carries no content, both kinds of content, or encodes to
// more than maxBytes.
func BuildPayload(req core.AnalysisRequest, maxBytes int64) ([]byte, error) {
	const op = "build payload"

	if maxBytes <= 0 {
		maxBytes = DefaultMaxPayloadBytes
	}

	p := Payload{FileName: req.FileName}
	switch {
	case req.File != nil && req.Table != nil:
		return nil, core.NewPayloadError(op, errors.New("request carries both a file and a table"))

	case req.File != nil:
		data, err := json.Marshal(req.File.Data)
		if err != nil {
			return nil, core.NewPayloadError(op, err)
		}
		p.FileData = data
		p.FileType = req.File.Format

	case req.Table != nil:
		data, err := encodeRows(req.Table)
		if err != nil {
			return nil, core.NewPayloadError(op, err)
		}
		p.FileData = data
		p.FileType = req.MediaType

	default:
		return nil, core.NewPayloadError(op, errors.New("request carries no content"))
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, core.NewPayloadError(op, err)
	}
	if int64(len(body)) > maxBytes {
		return nil, core.NewPayloadError(op, fmt.Errorf("payload too large: %d bytes exceeds %d", len(body), maxBytes))
	}
	return body, nil
}

// encodeRows writes the table as a JSON array of objects whose keys follow
// header order. Keys absent from a sparse row are omitted.
func encodeRows(t *core.Table) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range t.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		first := true
		for _, col := range t.Header {
			v, ok := row[col]
			if !ok {
				continue
			}
			key, err := json.Marshal(col)
			if err != nil {
				return nil, err
			}
			val, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, col, err)
			}
			if !first {
				buf.WriteByte(',')
			}
			first = false
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
