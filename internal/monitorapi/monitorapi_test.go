package monitorapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"errormonitor/internal/anomalystats"
	"errormonitor/internal/grouping"
	"errormonitor/internal/occurrence"
	"errormonitor/internal/store"
	"errormonitor/internal/summary"
	"errormonitor/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandler() (*Handler, *gin.Engine) {
	s := store.NewMemoryStore()
	g := grouping.New(s, time.Hour)
	rec := occurrence.New(s, g, nil, time.Hour)
	stats := anomalystats.New(s, time.Hour)
	builder := summary.New(s, g)
	h := New(s, g, rec, stats, builder, types.DetectionConfig{}, nil)

	router := gin.New()
	h.Register(router)
	return h, router
}

func TestPing_ReturnsPong(t *testing.T) {
	_, router := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
}

func TestPostMonitor_RejectsMissingVersion(t *testing.T) {
	_, router := newTestHandler()

	body := []byte(`{"minute": 0, "logs": []}`)
	req := httptest.NewRequest(http.MethodPost, "/monitor", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostMonitor_RecordsLogsAndReturnsOK(t *testing.T) {
	_, router := newTestHandler()

	body := []byte(`{
		"version": "260730-0001-0123456789ab",
		"minute": 0,
		"logs": [{"status": 500, "level": 3, "resource": "/api/widgets", "ip": "1.2.3.4", "route": "/api/widgets", "module_id": "default", "message": "boom"}]
	}`)
	req := httptest.NewRequest(http.MethodPost, "/monitor", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestGetMonitorResults_RequiresVerifyVersions(t *testing.T) {
	_, router := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/errors/260730-0001-0123456789ab/monitor/0", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMonitorResults_CountMatchingReferenceVersionIsNotFlagged(t *testing.T) {
	h, router := newTestHandler()

	for i := 0; i < 20; i++ {
		_, err := h.recorder.RecordDuringMonitoring("ref-version", 0, 500, 3, "/x", "1.2.3.4", "/x", "default", "boom")
		require.NoError(t, err)
	}

	for i := 0; i < 20; i++ {
		ip := "10.0.0." + string(rune('0'+i%10))
		_, err := h.recorder.RecordDuringMonitoring("new-version", 0, 500, 3, "/x", ip, "/x", "default", "boom")
		require.NoError(t, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/errors/new-version/monitor/0?verify_versions=ref-version", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Errors []map[string]any `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Errors, "counts roughly matching the reference version should not be flagged significant")
}

func TestGetError_UnknownKeyIsNotFound(t *testing.T) {
	_, router := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/error/deadbeef", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetError_ReturnsSummaryAfterRecording(t *testing.T) {
	h, router := newTestHandler()

	key, _, err := h.recorder.RecordFromErrors("260730-0001-0123456789ab", "20260730_10", 500, 3, "/x", "1.2.3.4", "/x", "default", "boom")
	require.NoError(t, err)
	require.NotEmpty(t, key)

	req := httptest.NewRequest(http.MethodGet, "/error/"+key, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.EqualValues(t, 1, got["count"])
}

func TestGetRecentErrors_IncludesRecordedError(t *testing.T) {
	h, router := newTestHandler()

	_, _, err := h.recorder.RecordFromErrors("260730-0001-0123456789ab", "20260730_10", 500, 3, "/x", "1.2.3.4", "/x", "default", "boom")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/recent_errors", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Errors []map[string]any `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Errors, 1)
}

func TestGetAnomalies_NoRoutesYieldsEmptyList(t *testing.T) {
	_, router := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/anomalies/20260730_10", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"anomalies": null}`, w.Body.String())
}
