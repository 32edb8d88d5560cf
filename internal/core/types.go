package core

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaLabel identifies which known log export format a table represents.
type SchemaLabel string

const (
	LabelFirewall SchemaLabel = "firewall"
	LabelSystem   SchemaLabel = "system"
	LabelCloud    SchemaLabel = "cloud"
	LabelUnknown  SchemaLabel = "unknown"

	// LabelAuto asks for the classifier's output. It is never a resolved label.
	LabelAuto SchemaLabel = "auto-detect"
)

// Labels lists the resolved labels in display order.
var Labels = []SchemaLabel{LabelFirewall, LabelSystem, LabelCloud, LabelUnknown}

// labelAliases maps the selector values used by the dashboard onto labels.
var labelAliases = map[string]SchemaLabel{
	"firewall":      LabelFirewall,
	"firewall-logs": LabelFirewall,
	"system":        LabelSystem,
	"system-logs":   LabelSystem,
	"cloud":         LabelCloud,
	"cloud-logs":    LabelCloud,
	"unknown":       LabelUnknown,
	"auto-detect":   LabelAuto,
	"auto":          LabelAuto,
}

// ParseLabel converts user input into a SchemaLabel. An empty value is a
// validation error ("no log type selected").
func ParseLabel(s string) (SchemaLabel, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return "", NewValidationError("parse label", "no log type selected")
	}
	l, ok := labelAliases[key]
	if !ok {
		return "", NewValidationError("parse label", fmt.Sprintf("unknown log type %q", s))
	}
	return l, nil
}

// Resolved reports whether l is one of the four concrete labels.
func (l SchemaLabel) Resolved() bool {
	switch l {
	case LabelFirewall, LabelSystem, LabelCloud, LabelUnknown:
		return true
	}
	return false
}

// DisplayName is the label as shown in listings and reports.
func (l SchemaLabel) DisplayName() string {
	switch l {
	case LabelFirewall:
		return "Firewall Logs"
	case LabelSystem:
		return "System Logs"
	case LabelCloud:
		return "Cloud Logs"
	case LabelAuto:
		return "Auto Detect"
	default:
		return "Unknown Logs"
	}
}

// Row is one decoded line keyed by header name. Values are string, float64,
// bool or nil. Rows may be sparse.
type Row map[string]any

// Has reports whether the row carries the key, regardless of its value.
func (r Row) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Table is a decoded upload. Rows are in source order with blank lines removed.
type Table struct {
	Header []string
	Rows   []Row
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// RawUpload is the file as received from the user.
type RawUpload struct {
	FileName  string
	MediaType string
	Data      []byte
}

// Ext returns the lower-cased file extension including the dot.
func (u *RawUpload) Ext() string {
	return strings.ToLower(filepath.Ext(u.FileName))
}

// spreadsheetExts are container formats that are decoded via their first sheet
// and transported as base64.
var spreadsheetExts = map[string]string{
	".xlsx": "xlsx",
	".xlsm": "xlsm",
	".xltx": "xltx",
	".xls":  "xls",
}

// SpreadsheetFormat returns the format tag for a spreadsheet file name, or ""
// when the name does not denote a spreadsheet container.
func SpreadsheetFormat(fileName string) string {
	return spreadsheetExts[strings.ToLower(filepath.Ext(fileName))]
}

// EncodedFile carries the original bytes of a binary upload in a text-safe form.
type EncodedFile struct {
	Format string
	Data   string
}

// AnalysisRequest is what the submitter sends for one upload. Exactly one of
// Table and File is set.
type AnalysisRequest struct {
	Label     SchemaLabel
	FileName  string
	MediaType string
	Table     *Table
	File      *EncodedFile

	// Verdict is an optional textual verdict supplied by the caller. The
	// fallback analyzer derives its attack signal from it.
	Verdict string
}

// Status is the verdict of an analysis.
type Status string

const (
	StatusSafe           Status = "Safe"
	StatusProbableAttack Status = "ProbableAttack"
)

// DisplayName is the status as shown in listings and reports.
func (s Status) DisplayName() string {
	if s == StatusProbableAttack {
		return "Probable Attack"
	}
	return string(s)
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusSafe || s == StatusProbableAttack
}

// Origin records which analyzer produced a result.
type Origin string

const (
	OriginRemote   Origin = "remote"
	OriginFallback Origin = "fallback"
)

// Metric is one named counter of a result. Value is a string or a number.
type Metric struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// NormalizedResult is the stored outcome of one completed analysis.
type NormalizedResult struct {
	ID          uuid.UUID   `json:"id"`
	SourceName  string      `json:"source_name"`
	Label       SchemaLabel `json:"schema_label"`
	Status      Status      `json:"status"`
	Probability float64     `json:"probability"`
	ObservedAt  time.Time   `json:"observed_at"`
	Metrics     []Metric    `json:"metrics"`
	Origin      Origin      `json:"origin"`
}

// Validate checks the structural invariants every stored or exported result
// must satisfy.
func (r NormalizedResult) Validate() error {
	var problems []string
	if r.SourceName == "" {
		problems = append(problems, "source name is empty")
	}
	if !r.Label.Resolved() {
		problems = append(problems, fmt.Sprintf("schema label %q is not resolved", r.Label))
	}
	if !r.Status.Valid() {
		problems = append(problems, fmt.Sprintf("status %q is not recognized", r.Status))
	}
	if r.Probability < 0 || r.Probability > 100 {
		problems = append(problems, fmt.Sprintf("probability %v is outside 0-100", r.Probability))
	}
	if len(r.Metrics) == 0 {
		problems = append(problems, "metrics are missing")
	}
	for i, m := range r.Metrics {
		if m.Name == "" {
			problems = append(problems, fmt.Sprintf("metric %d has no name", i))
		}
	}
	if r.ObservedAt.IsZero() {
		problems = append(problems, "observed time is missing")
	}
	if len(problems) > 0 {
		return fmt.Errorf("malformed result: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Clone returns a copy that shares no slices with r.
func (r NormalizedResult) Clone() NormalizedResult {
	out := r
	out.Metrics = append([]Metric(nil), r.Metrics...)
	return out
}
