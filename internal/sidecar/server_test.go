package sidecar

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/agrafes/internal/config"
	"github.com/hyperjump/agrafes/internal/models"
	"github.com/hyperjump/agrafes/internal/storage"
)

func testServer(t *testing.T, tokenMode string) (*Server, *storage.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := storage.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0, TokenMode: tokenMode},
		Query:  config.QueryConfig{DefaultLimit: 20, MaxLimit: 200, DefaultWindow: 10},
		Align:  config.AlignConfig{DefaultSimilarityThreshold: 0.8},
	}
	srv, err := NewServer(store, cfg, zap.NewNop(), dbPath)
	require.NoError(t, err)
	return srv, store
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, target, reader)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, r)
	return w
}

func TestHandleHealth_ReportsOK(t *testing.T) {
	srv, _ := testServer(t, "off")
	w := doJSON(t, srv.handleHealth, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleOpenAPI_ReturnsRouteSurface(t *testing.T) {
	srv, _ := testServer(t, "off")
	w := doJSON(t, srv.handleOpenAPI, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	paths, ok := out["paths"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, paths, "/query")
	assert.Contains(t, paths, "/jobs/enqueue")
}

func TestRequireToken_RejectsMissingTokenWhenExplicit(t *testing.T) {
	srv, _ := testServer(t, "explicit")
	srv.token = "secret-token"

	router := srv.router()
	r := httptest.NewRequest(http.MethodPost, "/index", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireToken_AcceptsMatchingToken(t *testing.T) {
	srv, _ := testServer(t, "explicit")
	srv.token = "secret-token"

	router := srv.router()
	r := httptest.NewRequest(http.MethodPost, "/index", nil)
	r.Header.Set(tokenHeader, "secret-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireToken_OffModeNeverRejects(t *testing.T) {
	srv, _ := testServer(t, "off")
	router := srv.router()
	r := httptest.NewRequest(http.MethodPost, "/index", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleImport_RejectsMissingFields(t *testing.T) {
	srv, _ := testServer(t, "off")
	w := doJSON(t, srv.handleImport, http.MethodPost, "/import", importRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleQuery_EmptyIndexReturnsNoHits(t *testing.T) {
	srv, _ := testServer(t, "off")
	w := doJSON(t, srv.handleQuery, http.MethodPost, "/query", models.QueryRequest{Query: "anything"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleListDocuments_EmptyStoreReturnsEmptyList(t *testing.T) {
	srv, _ := testServer(t, "off")
	w := doJSON(t, srv.handleListDocuments, http.MethodGet, "/documents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Data struct {
			Documents []models.Document `json:"documents"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Empty(t, out.Data.Documents)
}

func TestHandleEnqueueJob_UnknownKindIsRejected(t *testing.T) {
	srv, _ := testServer(t, "off")
	w := doJSON(t, srv.handleEnqueueJob, http.MethodPost, "/jobs/enqueue", enqueueRequest{Kind: "not-a-kind"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleEnqueueJob_IndexJobRunsAsynchronously(t *testing.T) {
	srv, _ := testServer(t, "off")
	w := doJSON(t, srv.handleEnqueueJob, http.MethodPost, "/jobs/enqueue", enqueueRequest{Kind: "index"})
	require.Equal(t, http.StatusAccepted, w.Code)
}

func TestHandleGetJob_UnknownIDIs404(t *testing.T) {
	srv, _ := testServer(t, "off")
	r := httptest.NewRequest(http.MethodGet, "/jobs/does-not-exist", nil)
	w := httptest.NewRecorder()
	srv.router().ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
