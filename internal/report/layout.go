// Package report renders a stored result into the "Upload Result Summary"
// document and serializes it as a paginated, image-based PDF.
package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/JonMunkholm/loglens/internal/core"
)

// Title heads every summary.
const Title = "Upload Result Summary"

// Header field labels, in display order.
const (
	FieldSheetName   = "Sheet Name"
	FieldLogType     = "Type of Logs"
	FieldResult      = "Result"
	FieldDate        = "Date of Result"
	FieldProbability = "Attack Probability"
)

// MetricsSection names the metric table and its two columns.
const (
	MetricsSection    = "Metrics"
	MetricNameColumn  = "Metric Name"
	MetricValueColumn = "Value"
)

// dateLayout is how ObservedAt is shown; the date is always rendered in UTC.
const dateLayout = "2006-01-02 15:04:05 UTC"

// Field is one "label: value" line of the summary header.
type Field struct {
	Label string
	Value string
}

// Layout is the structured content of a summary before rasterization.
type Layout struct {
	Title   string
	Fields  []Field
	Section string
	Columns [2]string
	Rows    [][2]string
}

// BuildLayout lays out r. The same result always yields the same Layout.
func BuildLayout(r core.NormalizedResult) (Layout, error) {
	if err := r.Validate(); err != nil {
		return Layout{}, core.NewRenderError("build layout", err)
	}

	rows := make([][2]string, len(r.Metrics))
	for i, m := range r.Metrics {
		rows[i] = [2]string{m.Name, FormatValue(m.Value)}
	}

	return Layout{
		Title: Title,
		Fields: []Field{
			{FieldSheetName, r.SourceName},
			{FieldLogType, r.Label.DisplayName()},
			{FieldResult, r.Status.DisplayName()},
			{FieldDate, FormatDate(r.ObservedAt)},
			{FieldProbability, FormatProbability(r.Probability)},
		},
		Section: MetricsSection,
		Columns: [2]string{MetricNameColumn, MetricValueColumn},
		Rows:    rows,
	}, nil
}

// FormatDate renders t in UTC the way summaries and listings show it.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// FormatProbability renders p as a percentage without trailing zeros.
func FormatProbability(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64) + "%"
}

// FormatValue renders a metric value for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}
