package analysis

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/loglens/internal/core"
)

func sampleTable() *core.Table {
	return &core.Table{
		Header: []string{"Source Port", "NAT Source Port", "Action"},
		Rows: []core.Row{
			{"Action": "allow", "Source Port": float64(443), "NAT Source Port": float64(8080)},
			{"Source Port": float64(53)},
		},
	}
}

func TestRoutes_EveryLabelResolves(t *testing.T) {
	routes := DefaultRoutes()

	assert.Equal(t, "/predict/firewall", routes.Route(core.LabelFirewall))
	assert.Equal(t, "/predict/system", routes.Route(core.LabelSystem))
	assert.Equal(t, "/predict/cloud", routes.Route(core.LabelCloud))
	assert.Equal(t, FallbackRoute, routes.Route(core.LabelUnknown))

	partial := Routes{core.LabelFirewall: "/fw"}
	assert.Equal(t, "/fw", partial.Route(core.LabelFirewall))
	assert.Equal(t, FallbackRoute, partial.Route(core.LabelCloud))

	custom := Routes{core.LabelUnknown: "/generic"}
	assert.Equal(t, "/generic", custom.Route(core.LabelSystem))
}

func TestNewRequest_ChoosesEncodingByExtension(t *testing.T) {
	table := sampleTable()

	req, err := NewRequest(core.LabelFirewall, core.RawUpload{FileName: "fw.xlsx", Data: []byte("PK\x03\x04")}, table)
	require.NoError(t, err)
	require.NotNil(t, req.File)
	assert.Nil(t, req.Table)
	assert.Equal(t, "xlsx", req.File.Format)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("PK\x03\x04")), req.File.Data)

	req, err = NewRequest(core.LabelFirewall, core.RawUpload{FileName: "fw.csv", Data: []byte("x")}, table)
	require.NoError(t, err)
	assert.Nil(t, req.File)
	assert.Same(t, table, req.Table)
	assert.Equal(t, "text/csv", req.MediaType)

	req, err = NewRequest(core.LabelSystem, core.RawUpload{FileName: "sys.log"}, table)
	require.NoError(t, err)
	assert.Equal(t, "text/plain", req.MediaType)
}

func TestNewRequest_PayloadErrors(t *testing.T) {
	_, err := NewRequest(core.LabelCloud, core.RawUpload{FileName: "empty.xlsx"}, sampleTable())
	assert.True(t, errors.Is(err, core.ErrPayload), "got %v", err)

	_, err = NewRequest(core.LabelCloud, core.RawUpload{FileName: "a.csv"}, nil)
	assert.True(t, errors.Is(err, core.ErrPayload), "got %v", err)
}

func TestBuildPayload_Table(t *testing.T) {
	req := core.AnalysisRequest{FileName: "fw.csv", MediaType: "text/csv", Table: sampleTable()}

	body, err := BuildPayload(req, 0)
	require.NoError(t, err)

	var p Payload
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, "fw.csv", p.FileName)
	assert.Equal(t, "text/csv", p.FileType)
	assert.JSONEq(t, `[{"Source Port":443,"NAT Source Port":8080,"Action":"allow"},{"Source Port":53}]`, string(p.FileData))

	// Keys follow header order, not map order.
	assert.Equal(t, `[{"Source Port":443,"NAT Source Port":8080,"Action":"allow"},{"Source Port":53}]`, string(p.FileData))
}

func TestBuildPayload_File(t *testing.T) {
	req := core.AnalysisRequest{FileName: "fw.xls", File: &core.EncodedFile{Format: "xls", Data: "QUJD"}}

	body, err := BuildPayload(req, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fileName":"fw.xls","fileData":"QUJD","fileType":"xls"}`, string(body))
}

func TestBuildPayload_Errors(t *testing.T) {
	tests := []struct {
		name string
		req  core.AnalysisRequest
		max  int64
	}{
		{"no content", core.AnalysisRequest{FileName: "a.csv"}, 0},
		{"both contents", core.AnalysisRequest{Table: sampleTable(), File: &core.EncodedFile{Format: "xlsx"}}, 0},
		{"too large", core.AnalysisRequest{Table: sampleTable()}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildPayload(tt.req, tt.max)
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrPayload), "got %v", err)
		})
	}
}
