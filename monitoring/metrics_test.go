package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics()
	m.ObserveRecommendation(1, false)
	m.ObserveRecommendation(1, true)
	m.ObserveRecommendation(2, false)
	m.ObserveTraining(250*time.Millisecond, 0.93)
	m.ObserveModelLoad("disk")
	m.ObserveSessionSaved()
	m.ObserveCohortReport(12)
	m.ObserveRequest(http.MethodPost, "/api/save_game", http.StatusOK, 5*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `portal_recommendations_total{cached="false",code="1"} 1`)
	assert.Contains(t, body, `portal_recommendations_total{cached="true",code="1"} 1`)
	assert.Contains(t, body, `portal_recommendations_total{cached="false",code="2"} 1`)
	assert.Contains(t, body, "portal_model_trainings_total 1")
	assert.Contains(t, body, "portal_model_training_accuracy 0.93")
	assert.Contains(t, body, `portal_model_loads_total{source="disk"} 1`)
	assert.Contains(t, body, "portal_sessions_saved_total 1")
	assert.Contains(t, body, "portal_cohort_patients 12")
	assert.Contains(t, body, `portal_http_request_duration_seconds_count{method="POST",route="/api/save_game",status="200"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsRegistriesAreIndependent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.ObserveSessionSaved()
	assert.Contains(t, scrape(t, a), "portal_sessions_saved_total 1")
	assert.Contains(t, scrape(t, b), "portal_sessions_saved_total 0")
}
