// Package analysis submits decoded uploads for attack analysis and
// normalizes the answer into a core.NormalizedResult.
//
// Two analyzers implement the same interface. RemoteAnalyzer posts to the
// analysis service, choosing the route by schema label. FallbackAnalyzer
// synthesizes a result locally and is only used when no service is
// configured. A deployment uses one or the other, never both.
package analysis

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/JonMunkholm/loglens/internal/core"
)

// Analyzer turns one request into one normalized result.
type Analyzer interface {
	Analyze(ctx context.Context, req core.AnalysisRequest) (core.NormalizedResult, error)
}

// Config selects and tunes the analyzer.
type Config struct {
	// BaseURL of the analysis service. Empty selects the fallback analyzer.
	BaseURL         string
	Routes          Routes
	Timeout         time.Duration
	MaxPayloadBytes int64
}

// New returns a RemoteAnalyzer when cfg.BaseURL is set and a
// FallbackAnalyzer otherwise.
func New(cfg Config) (Analyzer, error) {
	if cfg.BaseURL == "" {
		return NewFallbackAnalyzer(nil), nil
	}
	remote, err := NewRemoteAnalyzer(cfg, nil)
	if err != nil {
		return nil, err
	}
	return remote, nil
}

// NewRequest builds the request for an upload. Spreadsheet containers are
// carried as base64 of their original bytes; everything else carries the
// decoded table.
func NewRequest(label core.SchemaLabel, upload core.RawUpload, table *core.Table) (core.AnalysisRequest, error) {
	const op = "new request"

	req := core.AnalysisRequest{
		Label:     label,
		FileName:  upload.FileName,
		MediaType: textMediaType(upload),
	}

	if format := core.SpreadsheetFormat(upload.FileName); format != "" {
		if len(upload.Data) == 0 {
			return core.AnalysisRequest{}, core.Errorf(core.KindPayload, op, "spreadsheet %q has no content to encode", upload.FileName)
		}
		req.File = &core.EncodedFile{
			Format: format,
			Data:   base64.StdEncoding.EncodeToString(upload.Data),
		}
		return req, nil
	}

	if table == nil {
		return core.AnalysisRequest{}, core.Errorf(core.KindPayload, op, "no decoded table for %q", upload.FileName)
	}
	req.Table = table
	return req, nil
}

// textMediaType keeps a declared text media type and otherwise infers one
// from the extension.
func textMediaType(upload core.RawUpload) string {
	switch upload.MediaType {
	case "text/csv", "text/tab-separated-values", "text/plain":
		return upload.MediaType
	}
	switch upload.Ext() {
	case ".csv":
		return "text/csv"
	case ".tsv":
		return "text/tab-separated-values"
	default:
		return "text/plain"
	}
}
