package reportcli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"errormonitor/internal/models"
)

func TestClient_RecentErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recent_errors", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []models.ErrorSummary{{ErrorDef: models.ErrorDefinition{Key: "k1", Title: "boom"}, Count: 3}},
		})
	}))
	defer server.Close()

	c := New(server.Listener.Addr().String())
	errs, err := c.RecentErrors(context.Background())
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "k1", errs[0].ErrorDef.Key)
}

func TestClient_Anomalies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/anomalies/20260730_14", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"anomalies": []models.Anomaly{{Route: "/api", Status: 200, Count: 10, AnomalyScore: -11}},
		})
	}))
	defer server.Close()

	c := New(server.Listener.Addr().String())
	anomalies, err := c.Anomalies(context.Background(), "20260730_14")
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, "/api", anomalies[0].Route)
}

func TestInRange(t *testing.T) {
	s := models.ErrorSummary{ByHourAndVersion: []models.HourVersionCount{{Hour: "20260730_10"}, {Hour: "20260730_14"}}}

	assert.True(t, InRange(s, "20260730_09", "20260730_11"))
	assert.False(t, InRange(s, "20260801_00", "20260801_23"))
}

func TestCategorize_SplitsNewAndOld(t *testing.T) {
	newFirstSeen := "2026073012"
	oldFirstSeen := "2026072012"
	errors := []models.ErrorSummary{
		{ErrorDef: models.ErrorDefinition{Key: "new"}, FirstSeen: &newFirstSeen},
		{ErrorDef: models.ErrorDefinition{Key: "old"}, FirstSeen: &oldFirstSeen},
		{ErrorDef: models.ErrorDefinition{Key: "unknown"}},
	}

	newErrs, oldErrs := Categorize(errors, "20260730_00")
	require.Len(t, newErrs, 1)
	assert.Equal(t, "new", newErrs[0].ErrorDef.Key)
	require.Len(t, oldErrs, 2)
}
