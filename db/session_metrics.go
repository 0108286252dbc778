package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SessionMetric is one finished game session and the recommendation it got.
type SessionMetric struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	AppointmentID *int64    `json:"appointment_id,omitempty"`
	GameName      string    `json:"game_name"`
	Accuracy      float64   `json:"accuracy"`
	AvgTime       float64   `json:"avg_time"`
	Prediction    int       `json:"prediction"`
	Confidence    float64   `json:"confidence"`
	ModelID       string    `json:"model_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// PatientAverage aggregates one patient's sessions.
type PatientAverage struct {
	UserID   int64   `json:"user_id"`
	Accuracy float64 `json:"accuracy"`
	AvgTime  float64 `json:"avg_time"`
	Sessions int     `json:"sessions"`
}

// SaveSessionMetric inserts m and fills in its ID. A zero CreatedAt is set
// to the current time.
func (s *Store) SaveSessionMetric(ctx context.Context, m *SessionMetric) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if m.GameName == "" {
		m.GameName = DefaultGameName
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.CreatedAt = m.CreatedAt.UTC()

	var appointment sql.NullInt64
	if m.AppointmentID != nil {
		appointment = sql.NullInt64{Int64: *m.AppointmentID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO session_metrics (
            user_id, appointment_id, game_name, accuracy, avg_time,
            prediction, confidence, model_id, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UserID, appointment, m.GameName, m.Accuracy, m.AvgTime,
		m.Prediction, m.Confidence, m.ModelID, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session metric: %w", err)
	}
	if m.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("session metric id: %w", err)
	}
	return nil
}

// RecentSessionMetrics returns the user's latest sessions, newest first.
func (s *Store) RecentSessionMetrics(ctx context.Context, userID int64, limit int) ([]SessionMetric, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, user_id, appointment_id, game_name, accuracy, avg_time,
               prediction, confidence, model_id, created_at
        FROM session_metrics
        WHERE user_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query session metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]SessionMetric, 0)
	for rows.Next() {
		var m SessionMetric
		var appointment sql.NullInt64
		if err := rows.Scan(&m.ID, &m.UserID, &appointment, &m.GameName, &m.Accuracy, &m.AvgTime,
			&m.Prediction, &m.Confidence, &m.ModelID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session metric: %w", err)
		}
		if appointment.Valid {
			id := appointment.Int64
			m.AppointmentID = &id
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// PatientAverages returns per-user mean accuracy and response time over the
// sessions recorded at or after since, ordered by user id.
func (s *Store) PatientAverages(ctx context.Context, since time.Time) ([]PatientAverage, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT user_id, AVG(accuracy), AVG(avg_time), COUNT(*)
        FROM session_metrics
        WHERE created_at >= ?
        GROUP BY user_id
        ORDER BY user_id`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query patient averages: %w", err)
	}
	defer rows.Close()

	averages := make([]PatientAverage, 0)
	for rows.Next() {
		var a PatientAverage
		if err := rows.Scan(&a.UserID, &a.Accuracy, &a.AvgTime, &a.Sessions); err != nil {
			return nil, fmt.Errorf("scan patient average: %w", err)
		}
		averages = append(averages, a)
	}
	return averages, rows.Err()
}
