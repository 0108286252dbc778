package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the portal's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	recommendations *prometheus.CounterVec
	trainings       prometheus.Counter
	trainDuration   prometheus.Histogram
	trainAccuracy   prometheus.Gauge
	modelLoads      *prometheus.CounterVec
	sessionsSaved   prometheus.Counter
	cohortPatients  prometheus.Gauge
	requestDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_recommendations_total",
			Help: "Difficulty recommendations served, by code and cache result",
		}, []string{"code", "cached"}),
		trainings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_model_trainings_total",
			Help: "Completed classifier training runs",
		}),
		trainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portal_model_training_duration_seconds",
			Help:    "Classifier training duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		trainAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_model_training_accuracy",
			Help: "Training-set accuracy of the latest model",
		}),
		modelLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_model_loads_total",
			Help: "Models installed, by source (disk, train, reload)",
		}, []string{"source"}),
		sessionsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_sessions_saved_total",
			Help: "Game sessions persisted",
		}),
		cohortPatients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_cohort_patients",
			Help: "Patients in the latest cohort report",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.recommendations,
		m.trainings,
		m.trainDuration,
		m.trainAccuracy,
		m.modelLoads,
		m.sessionsSaved,
		m.cohortPatients,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) ObserveRecommendation(code int, cached bool) {
	m.recommendations.WithLabelValues(strconv.Itoa(code), strconv.FormatBool(cached)).Inc()
}

func (m *Metrics) ObserveTraining(duration time.Duration, accuracy float64) {
	m.trainings.Inc()
	m.trainDuration.Observe(duration.Seconds())
	m.trainAccuracy.Set(accuracy)
}

func (m *Metrics) ObserveModelLoad(source string) {
	m.modelLoads.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveSessionSaved() {
	m.sessionsSaved.Inc()
}

func (m *Metrics) ObserveCohortReport(patients int) {
	m.cohortPatients.Set(float64(patients))
}

func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
