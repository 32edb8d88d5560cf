package web

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/loglens/internal/analysis"
	"github.com/JonMunkholm/loglens/internal/config"
	"github.com/JonMunkholm/loglens/internal/core"
	"github.com/JonMunkholm/loglens/internal/ingest"
	"github.com/JonMunkholm/loglens/internal/metrics"
	"github.com/JonMunkholm/loglens/internal/report"
	"github.com/JonMunkholm/loglens/internal/schema"
	"github.com/JonMunkholm/loglens/internal/store"
	"github.com/JonMunkholm/loglens/internal/upload"
)

const firewallCSV = "Source Port,NAT Source Port,Action\n" +
	"443,8080,allow\n" +
	"53,9090,deny\n"

type testServer struct {
	srv     *Server
	store   *store.Memory
	metrics *metrics.Metrics
}

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, RequestTimeout: time.Minute},
		Upload:   config.UploadConfig{MaxFileSize: 1 << 20},
		Security: config.SecurityConfig{EnableCSP: true},
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	st := store.NewMemory()
	m := metrics.New()
	limiter := upload.NewLimiter(2, time.Second)
	sessions, err := upload.NewSessions(upload.Deps{
		Decoder:    ingest.NewDecoder(cfg.Upload.MaxFileSize),
		Classifier: schema.MustNewClassifier(),
		Analyzer:   analysis.NewFallbackAnalyzer(rand.New(rand.NewPCG(7, 11))),
		Store:      st,
		Limiter:    limiter,
		Metrics:    m,
	}, time.Minute)
	require.NoError(t, err)

	exporter, err := report.NewExporter(4, nil)
	require.NoError(t, err)

	srv, err := NewServer(Deps{
		Sessions: sessions,
		Store:    st,
		Exporter: exporter,
		Limiter:  limiter,
		Metrics:  m,
	}, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testServer{srv: srv, store: st, metrics: m}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, path, fileName, content, schemaValue string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	if schemaValue != "" {
		require.NoError(t, mw.WriteField("schema", schemaValue))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type uploadBody struct {
	SessionID uuid.UUID `json:"session_id"`
	State     string    `json:"state"`
	Detection struct {
		FileName string           `json:"file_name"`
		Detected core.SchemaLabel `json:"detected"`
		Selected core.SchemaLabel `json:"selected"`
		Rows     int              `json:"rows"`
	} `json:"detection"`
}

type resultBody struct {
	Result core.NormalizedResult `json:"result"`
	Notice core.Notice           `json:"notice"`
}

func TestUploadConfirmExportFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(multipartRequest(t, "/api/uploads", "fw.csv", firewallCSV, ""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	up := decode[uploadBody](t, rec)
	assert.Equal(t, "awaiting_confirmation", up.State)
	assert.Equal(t, core.LabelFirewall, up.Detection.Detected)
	assert.Equal(t, core.LabelFirewall, up.Detection.Selected)
	assert.Equal(t, 2, up.Detection.Rows)

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/api/uploads/"+up.SessionID.String()+"/confirm", nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	res := decode[resultBody](t, rec)
	assert.Equal(t, "fw.csv", res.Result.SourceName)
	assert.Equal(t, core.LabelFirewall, res.Result.Label)
	assert.Equal(t, core.OriginFallback, res.Result.Origin)
	assert.Equal(t, core.SuccessNotice.Title, res.Notice.Title)
	assert.Equal(t, 1, ts.store.Len())

	// The session ends with the confirmation.
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/uploads/"+up.SessionID.String(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/results", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	listing := decode[struct {
		Results []core.NormalizedResult `json:"results"`
		Count   int                     `json:"count"`
	}](t, rec)
	require.Equal(t, 1, listing.Count)
	assert.Equal(t, res.Result.ID, listing.Results[0].ID)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/results/"+res.Result.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, res.Result.ID, decode[core.NormalizedResult](t, rec).ID)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/results/"+res.Result.ID.String()+"/export", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="result-summary.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
}

func TestUploadOverrideBeforeConfirm(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(multipartRequest(t, "/api/uploads", "header-only.csv", "a,b,c\n", ""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	up := decode[uploadBody](t, rec)
	assert.Equal(t, core.LabelUnknown, up.Detection.Detected)

	path := "/api/uploads/" + up.SessionID.String()
	rec = ts.do(jsonRequest(http.MethodPut, path+"/schema", `{"schema":"firewall-logs"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, core.LabelFirewall, decode[uploadBody](t, rec).Detection.Selected)

	rec = ts.do(jsonRequest(http.MethodPut, path+"/schema", `{"schema":"mainframe"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL002", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(jsonRequest(http.MethodPut, path+"/schema", ``))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(jsonRequest(http.MethodPost, path+"/confirm", `{"schema":"cloud"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, core.LabelCloud, decode[resultBody](t, rec).Result.Label)
}

func TestUploadWithoutFile(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(multipartRequest(t, "/api/uploads", "", "", "firewall"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL001", decode[ErrorResponse](t, rec).Code)
	assert.Equal(t, 0, ts.srv.deps.Sessions.Len())

	rec = ts.do(jsonRequest(http.MethodPost, "/api/uploads", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL001", decode[ErrorResponse](t, rec).Code)
}

func TestUploadDecodeFailure(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(multipartRequest(t, "/api/uploads", "blank.csv", "\n\n", ""))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "FILE002", decode[ErrorResponse](t, rec).Code)
	assert.Equal(t, 0, ts.srv.deps.Sessions.Len())
}

func TestUploadTooLarge(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Upload.MaxFileSize = 16 })

	big := strings.Repeat("a,b\n", 1<<19)
	rec := ts.do(multipartRequest(t, "/api/uploads", "big.csv", big, ""))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE001", decode[ErrorResponse](t, rec).Code)
}

func TestSessionErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/uploads/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "VAL005", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/uploads/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/results/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelUpload(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(multipartRequest(t, "/api/uploads", "fw.csv", firewallCSV, ""))
	require.Equal(t, http.StatusCreated, rec.Code)
	path := "/api/uploads/" + decode[uploadBody](t, rec).SessionID.String()

	rec = ts.do(httptest.NewRequest(http.MethodDelete, path, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(httptest.NewRequest(http.MethodPost, path+"/confirm", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 0, ts.store.Len())
}

func TestAnalyzeOneShot(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(multipartRequest(t, "/api/analyze", "fw.csv", firewallCSV, "system"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	res := decode[resultBody](t, rec)
	assert.Equal(t, core.LabelSystem, res.Result.Label)
	assert.Equal(t, 1, ts.store.Len())
	assert.Equal(t, 0, ts.srv.deps.Sessions.Len())
}

func TestResultsPage(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/results", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No results yet.")

	rec = ts.do(multipartRequest(t, "/api/analyze", "<fw>.csv", firewallCSV, ""))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[resultBody](t, rec).Result.ID

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/results", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	for _, col := range []string{"Sheet Name", "Log Type", "Result Status", "Attack Probability", "Date"} {
		assert.Contains(t, body, col)
	}
	assert.Contains(t, body, "&lt;fw&gt;.csv")
	assert.NotContains(t, body, "<fw>")
	assert.Contains(t, body, "Firewall Logs")
	assert.Contains(t, body, "/api/results/"+id.String()+"/export")
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestSchemasHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/schemas", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	schemas := decode[struct {
		Labels []struct {
			Value core.SchemaLabel `json:"value"`
		} `json:"labels"`
		Signatures []schema.Signature `json:"signatures"`
	}](t, rec)
	require.Len(t, schemas.Labels, 5)
	assert.Equal(t, core.LabelAuto, schemas.Labels[0].Value)
	assert.Len(t, schemas.Signatures, len(schema.DefaultSignatures))

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", health["status"])
	assert.Contains(t, health, "submissions")

	ts.do(multipartRequest(t, "/api/analyze", "fw.csv", firewallCSV, ""))
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "loglens_uploads_total")
}

func TestUploadRateLimit(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 100, UploadLimit: 1}
	})

	rec := ts.do(multipartRequest(t, "/api/analyze", "fw.csv", firewallCSV, ""))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(multipartRequest(t, "/api/analyze", "fw.csv", firewallCSV, ""))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE001", decode[ErrorResponse](t, rec).Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Other routes keep their own budget.
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/results", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(Deps{}, testConfig())
	assert.Error(t, err)
}
