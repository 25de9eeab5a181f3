package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abdullah0297445/clickup-exporter/internal/cache"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeReader struct {
	envelopes map[string]*cache.Envelope // by version
	latest    string
}

func (f *fakeReader) Latest(ctx context.Context, teamID string) (string, error) {
	return f.latest, nil
}

func (f *fakeReader) Get(ctx context.Context, teamID, version string) (*cache.Envelope, error) {
	return f.envelopes[version], nil
}

func newTestRouter(t *testing.T, store ExportReader, authToken string) *gin.Engine {
	t.Helper()
	srv := NewServer(store, Config{
		TeamID:    "42",
		AuthToken: authToken,
	})
	srv.startTime = time.Now()

	r := gin.New()
	r.GET("/health", srv.handleHealth)
	r.GET("/api/v1/export/", srv.handleExport)
	return r
}

func doGet(r *gin.Engine, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeReader{latest: "20260829"}, "secret")
	w := doGet(r, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "20260829", body["latest_export"])
}

func TestExportRequiresConfiguredToken(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeReader{}, "")
	w := doGet(r, "/api/v1/export/", map[string]string{"Authorization": "Bearer x"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestExportAuth(t *testing.T) {
	t.Parallel()

	store := &fakeReader{
		latest: "20260829",
		envelopes: map[string]*cache.Envelope{
			"20260829": {Status: cache.StatusSuccess, Data: json.RawMessage(`[{"id":"t1"}]`)},
		},
	}

	tests := []struct {
		name     string
		target   string
		header   map[string]string
		wantCode int
	}{
		{"missing token", "/api/v1/export/", nil, http.StatusUnauthorized},
		{"wrong token", "/api/v1/export/", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"bearer header", "/api/v1/export/", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"bare header", "/api/v1/export/", map[string]string{"Authorization": "secret"}, http.StatusOK},
		{"token query param", "/api/v1/export/?token=secret", nil, http.StatusOK},
		{"api_token query param", "/api/v1/export/?api_token=secret", nil, http.StatusOK},
		{"authorization query param", "/api/v1/export/?authorization=Bearer%20secret", nil, http.StatusOK},
		{"wrong query token", "/api/v1/export/?token=nope", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, store, "secret")
			w := doGet(r, tt.target, tt.header)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestExportNotReady(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeReader{}, "secret")
	w := doGet(r, "/api/v1/export/?token=secret", nil)

	require.Equal(t, http.StatusAccepted, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_ready", body["status"])
}

func TestExportReturnsUnwrappedData(t *testing.T) {
	t.Parallel()

	store := &fakeReader{
		latest: "20260829",
		envelopes: map[string]*cache.Envelope{
			"20260829": {Status: cache.StatusSuccess, Data: json.RawMessage(`[{"id":"t1","name":"fix login"}]`)},
		},
	}
	r := newTestRouter(t, store, "secret")
	w := doGet(r, "/api/v1/export/?token=secret", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"id":"t1","name":"fix login"}]`, w.Body.String())
}

func TestExportReturnsEnvelopeWhileInProgress(t *testing.T) {
	t.Parallel()

	store := &fakeReader{
		latest: "20260829",
		envelopes: map[string]*cache.Envelope{
			"20260829": {Status: cache.StatusInProgress, StartedAt: "2026-08-29T01:00:00Z"},
		},
	}
	r := newTestRouter(t, store, "secret")
	w := doGet(r, "/api/v1/export/?token=secret", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var env cache.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, cache.StatusInProgress, env.Status)
}

func TestExportMissingTeam(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeReader{}, Config{AuthToken: "secret"})
	r := gin.New()
	r.GET("/api/v1/export/", srv.handleExport)

	w := doGet(r, "/api/v1/export/?token=secret", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGzipCompression(t *testing.T) {
	t.Parallel()

	// gzhttp only compresses bodies above its minimum size, so the
	// payload has to be realistically large.
	tasks := make([]map[string]any, 200)
	for i := range tasks {
		tasks[i] = map[string]any{"id": "t1", "name": "a task with a reasonably long name"}
	}
	data, err := json.Marshal(tasks)
	require.NoError(t, err)

	store := &fakeReader{
		latest: "20260829",
		envelopes: map[string]*cache.Envelope{
			"20260829": {Status: cache.StatusSuccess, Data: data},
		},
	}
	srv := NewServer(store, Config{TeamID: "42", AuthToken: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/export/?token=secret", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	srv.handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Less(t, w.Body.Len(), len(data), "compressed body must be smaller")
}
