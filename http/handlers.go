package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"therapyportal/cohort"
	"therapyportal/db"
	"therapyportal/difficulty"
	"therapyportal/monitoring"

	"go.uber.org/zap"
)

type Recommender interface {
	Recommend(ctx context.Context, accuracy, avgTime float64) (difficulty.Recommendation, error)
	Retrain(ctx context.Context) (*difficulty.TrainingReport, error)
	Info() difficulty.ModelInfo
}

type SessionStore interface {
	SaveSessionMetric(ctx context.Context, m *db.SessionMetric) error
	DashboardStats(ctx context.Context, now time.Time) (*db.DashboardStats, error)
	LoadTrainingLog(ctx context.Context, limit int) ([]db.TrainingLog, error)
	Ping(ctx context.Context) error
}

type CohortBuilder interface {
	Build(ctx context.Context, since time.Time) (*cohort.Report, error)
}

type Publisher interface {
	Publish(topic monitoring.EventType, data any) error
}

// API serves the portal's JSON endpoints. Publisher, Live and Metrics are
// optional; Live is the websocket endpoint for session events.
type API struct {
	Recommender  Recommender
	Store        SessionStore
	Cohorts      CohortBuilder
	Publisher    Publisher
	Live         http.Handler
	Metrics      *monitoring.Metrics
	Logger       *zap.Logger
	LookbackDays int
	Now          func() time.Time
}

func (a *API) Register(mux *http.ServeMux) {
	handle(mux, "GET /api/health", http.HandlerFunc(a.handleHealth))
	handle(mux, "POST /api/save_game", http.HandlerFunc(a.handleSaveGame))
	handle(mux, "GET /api/recommendation", http.HandlerFunc(a.handleRecommendation))
	handle(mux, "GET /api/cohorts", http.HandlerFunc(a.handleCohorts))
	handle(mux, "GET /api/dashboard", http.HandlerFunc(a.handleDashboard))
	handle(mux, "GET /api/model", http.HandlerFunc(a.handleModel))
	handle(mux, "POST /api/model/retrain", http.HandlerFunc(a.handleRetrain))
	if a.Metrics != nil {
		handle(mux, "GET /metrics", a.Metrics.Handler())
	}
	if a.Live != nil {
		handle(mux, "GET /api/ws/sessions", a.Live)
	}
}

// handle registers h under pattern and records the pattern's path as the
// request's route label.
func handle(mux *http.ServeMux, pattern string, h http.Handler) {
	route := pattern
	if _, path, ok := strings.Cut(pattern, " "); ok {
		route = path
	}
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setRoute(r.Context(), route)
		h.ServeHTTP(w, r)
	}))
}

type saveGameRequest struct {
	UserID        int64    `json:"user_id"`
	AppointmentID *int64   `json:"appointment_id,omitempty"`
	GameName      string   `json:"game_name"`
	Accuracy      *float64 `json:"accuracy"`
	AvgTime       *float64 `json:"avg_time"`
}

type saveGameResponse struct {
	Recommendation string  `json:"recommendation"`
	Code           int     `json:"code"`
	Confidence     float64 `json:"confidence"`
	SessionID      int64   `json:"session_id"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.Store != nil {
		if err := a.Store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleSaveGame(w http.ResponseWriter, r *http.Request) {
	var req saveGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Accuracy == nil || req.AvgTime == nil {
		writeError(w, http.StatusBadRequest, "accuracy and avg_time are required")
		return
	}

	rec, err := a.Recommender.Recommend(r.Context(), *req.Accuracy, *req.AvgTime)
	if err != nil {
		a.recommendError(w, r, err)
		return
	}

	metric := &db.SessionMetric{
		UserID:        req.UserID,
		AppointmentID: req.AppointmentID,
		GameName:      req.GameName,
		Accuracy:      *req.Accuracy,
		AvgTime:       *req.AvgTime,
		Prediction:    rec.Code,
		Confidence:    rec.Confidence,
		ModelID:       rec.ModelID,
		CreatedAt:     a.now(),
	}
	if err := a.Store.SaveSessionMetric(r.Context(), metric); err != nil {
		a.logger().Error("save session failed", zap.Int64("user_id", req.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save session")
		return
	}
	if a.Metrics != nil {
		a.Metrics.ObserveSessionSaved()
	}
	a.publish(monitoring.SessionRecorded, metric)

	writeJSON(w, http.StatusOK, saveGameResponse{
		Recommendation: rec.Text,
		Code:           rec.Code,
		Confidence:     rec.Confidence,
		SessionID:      metric.ID,
	})
}

func (a *API) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accuracy, err := strconv.ParseFloat(q.Get("accuracy"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "accuracy must be a number")
		return
	}
	avgTime, err := strconv.ParseFloat(q.Get("avg_time"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "avg_time must be a number")
		return
	}
	rec, err := a.Recommender.Recommend(r.Context(), accuracy, avgTime)
	if err != nil {
		a.recommendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) handleCohorts(w http.ResponseWriter, r *http.Request) {
	days := a.LookbackDays
	if days <= 0 {
		days = 30
	}
	if v := r.URL.Query().Get("days"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = d
	}
	report, err := a.Cohorts.Build(r.Context(), a.now().AddDate(0, 0, -days))
	if err != nil {
		a.logger().Error("cohort report failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not build cohort report")
		return
	}
	if a.Metrics != nil {
		a.Metrics.ObserveCohortReport(report.Patients)
	}
	a.publish(monitoring.CohortsBuilt, report)
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Store.DashboardStats(r.Context(), a.now())
	if err != nil {
		a.logger().Error("dashboard stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleModel(w http.ResponseWriter, r *http.Request) {
	history, err := a.Store.LoadTrainingLog(r.Context(), 10)
	if err != nil {
		a.logger().Error("load training log failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load training history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":   a.Recommender.Info(),
		"history": history,
	})
}

func (a *API) handleRetrain(w http.ResponseWriter, r *http.Request) {
	report, err := a.Recommender.Retrain(r.Context())
	if err != nil {
		a.logger().Error("retrain failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "training failed")
		return
	}
	a.publish(monitoring.ModelTrained, report)
	writeJSON(w, http.StatusOK, report)
}

func (a *API) recommendError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, difficulty.ErrInvalidObservation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, difficulty.ErrCorruptArtifact), errors.Is(err, difficulty.ErrNoModel):
		a.logger().Error("model unavailable", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "model unavailable")
	default:
		a.logger().Error("recommendation failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "recommendation failed")
	}
}

func (a *API) publish(topic monitoring.EventType, data any) {
	if a.Publisher == nil {
		return
	}
	if err := a.Publisher.Publish(topic, data); err != nil {
		a.logger().Warn("publish event failed", zap.String("type", string(topic)), zap.Error(err))
	}
}

func (a *API) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *API) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

