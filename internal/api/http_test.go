package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heysubinoy/flagstore/internal/store"
	"github.com/heysubinoy/flagstore/pkg/flags"
)

func newTestHTTP(t *testing.T, storage flags.Storage) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewServer(storage, nil).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestHTTPFlagLifecycle(t *testing.T) {
	srv := newTestHTTP(t, store.New(store.NewMemBackend(), store.Options{Prefix: "test"}))

	beta := `{"name":"beta","environment":"production","enabled":false,"rules":[],"percentage":null,"updatedAt":100}`
	resp, _ := do(t, http.MethodPost, srv.URL+"/flags", beta)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/flags", beta)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := do(t, http.MethodGet, srv.URL+"/flags/beta/production", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, beta, body)

	resp, body = do(t, http.MethodPatch, srv.URL+"/flags/beta/production", `{"enabled":true,"percentage":30,"updatedAt":200}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"name":"beta","environment":"production","enabled":true,"rules":[],"percentage":30,"updatedAt":200}`, body)

	resp, body = do(t, http.MethodPatch, srv.URL+"/flags/beta/production", `{"percentage":null,"updatedAt":300}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var f flags.Flag
	require.NoError(t, json.Unmarshal([]byte(body), &f))
	assert.Nil(t, f.Percentage)
	assert.True(t, f.Enabled)

	resp, body = do(t, http.MethodGet, srv.URL+"/flags", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var list []flags.Flag
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	assert.Len(t, list, 1)

	resp, _ = do(t, http.MethodDelete, srv.URL+"/flags/beta", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/flags/beta/production", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/flags", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, body)
}

func TestHTTPBadRequests(t *testing.T) {
	srv := newTestHTTP(t, store.New(store.NewMemBackend(), store.Options{Prefix: "test"}))

	resp, _ := do(t, http.MethodPost, srv.URL+"/flags", "{")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/flags", `{"environment":"production"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPost, srv.URL+"/flags", `{"name":"x","environment":"qa"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, srv.URL+"/flags/x/qa", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPatch, srv.URL+"/flags/x/production", `{"enabled":true}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodPatch, srv.URL+"/flags/x/production", `{"enabled":true,"updatedAt":1}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, http.MethodPut, srv.URL+"/flags", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

type brokenStorage struct {
	flags.Storage
}

func (brokenStorage) ListFlags(context.Context) ([]flags.Flag, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestHTTPBackendFailure(t *testing.T) {
	srv := newTestHTTP(t, brokenStorage{})

	resp, body := do(t, http.MethodGet, srv.URL+"/flags", "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, body, "connection refused")
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	storage := store.NewInstrumentedStorage(store.New(store.NewMemBackend(), store.Options{Prefix: "test"}), store.NewMetrics(reg))
	_, err := storage.ListFlags(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	MetricsHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `flagstore_operations_total{op="list",result="ok"} 1`)
}
