package templates

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/loglens/internal/core"
)

func renderString(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	return buf.String()
}

func TestResultsPage_Empty(t *testing.T) {
	html := renderString(t, ResultsPage(nil))

	assert.True(t, strings.HasPrefix(html, "<!doctype html>"))
	assert.Contains(t, html, "<title>Results</title>")
	assert.Contains(t, html, "<h1>Results</h1><p>No results yet.</p>")
	assert.NotContains(t, html, "<table>")
}

func TestResultsPage_Rows(t *testing.T) {
	attack := core.NormalizedResult{
		ID:          uuid.MustParse("3f2c1e52-8a4b-4c1d-9e6f-0a1b2c3d4e5f"),
		SourceName:  `<fw> & "edge".csv`,
		Label:       core.LabelFirewall,
		Status:      core.StatusProbableAttack,
		Probability: 0.87,
		ObservedAt:  time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC),
	}
	safe := attack
	safe.ID = uuid.MustParse("7d9e0f11-2233-4455-8899-aabbccddeeff")
	safe.SourceName = "sys.csv"
	safe.Label = core.LabelSystem
	safe.Status = core.StatusSafe

	html := renderString(t, ResultsPage([]core.NormalizedResult{attack, safe}))

	for _, col := range ResultColumns {
		assert.Contains(t, html, "<th>"+col+"</th>")
	}
	assert.Contains(t, html, "&lt;fw&gt; &amp; &#34;edge&#34;.csv")
	assert.NotContains(t, html, "<fw>")
	assert.Contains(t, html, `<td class="attack">`+core.StatusProbableAttack.DisplayName()+"</td>")
	assert.Contains(t, html, "<td>"+core.StatusSafe.DisplayName()+"</td>")
	assert.Equal(t, 1, strings.Count(html, `class="attack"`))
	assert.Contains(t, html, `<a href="/api/results/3f2c1e52-8a4b-4c1d-9e6f-0a1b2c3d4e5f/export" download>Export PDF</a>`)
	assert.Contains(t, html, `<a href="/api/results/7d9e0f11-2233-4455-8899-aabbccddeeff/export" download>Export PDF</a>`)
	assert.Equal(t, 2, strings.Count(html, "<tr><td>"))
}

func TestErrorPage_EscapesNotice(t *testing.T) {
	html := renderString(t, ErrorPage(core.Notice{
		Title:       "Export failed",
		Description: "bad <script> input",
		Code:        "RND001",
	}))

	assert.Contains(t, html, "<title>Export failed</title>")
	assert.Contains(t, html, `<div class="notice"><strong>Export failed</strong>`)
	assert.Contains(t, html, "<p>bad &lt;script&gt; input</p>")
	assert.Contains(t, html, "<small>Code: RND001</small>")
	assert.True(t, strings.HasSuffix(html, "</body></html>"))
}
