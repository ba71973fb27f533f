package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/raaihank/pii-sentinel/internal/config"
	"github.com/raaihank/pii-sentinel/internal/logger"
	"github.com/raaihank/pii-sentinel/internal/observability"
	"github.com/raaihank/pii-sentinel/internal/record"
	"github.com/raaihank/pii-sentinel/internal/store"
)

func testConfig() *config.Config {
	cfg := config.GetDefaults()
	cfg.WebSocket.Enabled = false
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()

	s, err := New(cfg, logger.NewNop(), opts...)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestNewRejectsUnknownDetector(t *testing.T) {
	cfg := testConfig()
	cfg.Privacy.Detectors = []string{"fingerprint"}

	_, err := New(cfg, logger.NewNop())
	assert.Error(t, err)
}

func TestHealthAndInfo(t *testing.T) {
	cfg := testConfig()
	cfg.Privacy.Detectors = []string{"phone", "email"}
	_, ts := newTestServer(t, cfg)

	resp := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]string
	decode(t, resp, &health)
	assert.Equal(t, "healthy", health["status"])

	resp = get(t, ts.URL+"/info")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info infoResponse
	decode(t, resp, &info)
	assert.Equal(t, "pii-sentinel", info.Name)
	assert.Len(t, info.Detectors, 2)
	assert.False(t, info.StoreEnabled)
	assert.False(t, info.CacheEnabled)
}

func TestClassify(t *testing.T) {
	_, ts := newTestServer(t, testConfig())

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantPII    bool
		wantBody   string
	}{
		{
			name:       "phone is masked",
			body:       `{"phone":"9876543210","city":"Pune"}`,
			wantStatus: http.StatusOK,
			wantPII:    true,
			wantBody:   `"redacted":{"phone":"98XXXXXX10","city":"Pune"}`,
		},
		{
			name:       "no pii",
			body:       `{"product":"<b>lamp</b>"}`,
			wantStatus: http.StatusOK,
			wantPII:    false,
			wantBody:   `"redacted":{"product":"<b>lamp</b>"}`,
		},
		{
			name:       "not an object",
			body:       `["9876543210"]`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid json",
			body:       `{"phone":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/v1/classify", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			if tt.wantStatus != http.StatusOK {
				assert.Contains(t, string(body), `"error"`)
				return
			}

			assert.Contains(t, string(body), tt.wantBody)
			var result struct {
				IsPII bool `json:"is_pii"`
			}
			require.NoError(t, json.Unmarshal(body, &result))
			assert.Equal(t, tt.wantPII, result.IsPII)
		})
	}
}

func TestClassifyBodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxBodyBytes = 16
	_, ts := newTestServer(t, cfg)

	resp := postJSON(t, ts.URL+"/v1/classify", `{"phone":"9876543210","city":"Pune"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestRequestIDIsPropagated(t *testing.T) {
	_, ts := newTestServer(t, testConfig())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/classify", strings.NewReader(`{}`))
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "req-42")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req-42", resp.Header.Get(RequestIDHeader))
}

func TestRecordsKeepsOrderAndPersists(t *testing.T) {
	st, err := store.NewStore(&store.Config{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "results.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := testConfig()
	cfg.Pipeline.BatchSize = 2
	_, ts := newTestServer(t, cfg, WithStore(st))

	body := `{"records":[
		{"record_id":"r1","data_json":"{\"phone\":\"9876543210\"}"},
		{"record_id":"r2","data_json":"{\"city\":\"Pune\"}"},
		{"record_id":"r3","data_json":"not json"}
	]}`
	resp := postJSON(t, ts.URL+"/v1/records", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out recordsResponse
	decode(t, resp, &out)
	require.Len(t, out.Results, 3)
	assert.Equal(t, record.Output{RecordID: "r1", RedactedDataJSON: `{"phone": "98XXXXXX10"}`, IsPII: true}, out.Results[0])
	assert.Equal(t, record.Output{RecordID: "r2", RedactedDataJSON: `{"city": "Pune"}`, IsPII: false}, out.Results[1])
	assert.Equal(t, record.Output{RecordID: "r3", RedactedDataJSON: `{}`, IsPII: false}, out.Results[2])

	resp = get(t, ts.URL+"/v1/records/r1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))

	var got record.Output
	decode(t, resp, &got)
	assert.Equal(t, out.Results[0], got)

	resp = get(t, ts.URL+"/v1/records/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = get(t, ts.URL+"/v1/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats struct {
		Pipeline struct {
			RecordsProcessed int64 `json:"records_processed"`
			PIIRecords       int64 `json:"pii_records"`
			ParseFailures    int64 `json:"parse_failures"`
		} `json:"pipeline"`
		Store *store.Stats `json:"store"`
	}
	decode(t, resp, &stats)
	assert.Equal(t, int64(3), stats.Pipeline.RecordsProcessed)
	assert.Equal(t, int64(1), stats.Pipeline.PIIRecords)
	assert.Equal(t, int64(1), stats.Pipeline.ParseFailures)
	require.NotNil(t, stats.Store)
	assert.Equal(t, int64(3), stats.Store.TotalRecords)
	assert.Equal(t, int64(1), stats.Store.PIIRecords)
}

func TestRecordsValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxRecords = 1
	_, ts := newTestServer(t, cfg)

	resp := postJSON(t, ts.URL+"/v1/records", `{"records":[`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/v1/records",
		`{"records":[{"record_id":"a","data_json":"{}"},{"record_id":"b","data_json":"{}"}]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/v1/records", `{"records":[]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"results":[]}`, string(body))
}

func TestGetRecordWithoutBackends(t *testing.T) {
	_, ts := newTestServer(t, testConfig())

	resp := get(t, ts.URL+"/v1/records/r1")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerMin = 60
	cfg.RateLimit.Burst = 2
	_, ts := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		resp := postJSON(t, ts.URL+"/v1/classify", `{}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := postJSON(t, ts.URL+"/v1/classify", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))

	// health is outside the limited API
	resp = get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReload(t *testing.T) {
	s, ts := newTestServer(t, testConfig())

	cfg := testConfig()
	cfg.Privacy.Detectors = []string{"national_id"}
	require.NoError(t, s.Reload(cfg))

	resp := postJSON(t, ts.URL+"/v1/classify", `{"phone":"9876543210"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"redacted":{"phone":"9876543210"}`)

	cfg.Privacy.Detectors = []string{"bogus"}
	assert.Error(t, s.Reload(cfg))
	assert.Len(t, s.Pipeline().Classifier().Registry().Categories(), 1)
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := observability.NewMetrics("pii_sentinel_test")
	_, ts := newTestServer(t, testConfig(), WithMetrics(metrics))

	resp := postJSON(t, ts.URL+"/v1/records",
		`{"records":[{"record_id":"a","data_json":"{\"phone\":\"9876543210\"}"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `pii_sentinel_test_records_processed_total{is_pii="true"} 1`)
	assert.Contains(t, buf.String(), `pii_sentinel_test_http_requests_total{code="200",route="/v1/records"} 1`)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded for", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.1.1.1:80", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.3"}, "1.1.1.1:80", "10.0.0.3"},
		{"remote addr", nil, "1.1.1.1:80", "1.1.1.1"},
		{"remote addr without port", nil, "1.1.1.1", "1.1.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(r))
		})
	}
}
