package db

import (
	"context"
	"fmt"
	"time"
)

type TrainingLog struct {
	ModelID    string    `json:"model_id"`
	ModelName  string    `json:"model_name"`
	Accuracy   float64   `json:"accuracy"`
	Samples    int       `json:"samples"`
	Seed       int64     `json:"seed"`
	DurationMs int64     `json:"duration_ms"`
	TrainedAt  time.Time `json:"trained_at"`
}

func (s *Store) RecordTraining(ctx context.Context, log TrainingLog) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if log.TrainedAt.IsZero() {
		log.TrainedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (model_id, model_name, accuracy, samples, seed, duration_ms, trained_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.ModelID, log.ModelName, log.Accuracy, log.Samples, log.Seed, log.DurationMs, log.TrainedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert training log: %w", err)
	}
	return nil
}

// LoadTrainingLog returns up to limit entries, newest first.
func (s *Store) LoadTrainingLog(ctx context.Context, limit int) ([]TrainingLog, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT model_id, model_name, accuracy, samples, seed, duration_ms, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query training log: %w", err)
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ModelID, &log.ModelName, &log.Accuracy, &log.Samples, &log.Seed, &log.DurationMs, &log.TrainedAt); err != nil {
			return nil, fmt.Errorf("scan training log: %w", err)
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
