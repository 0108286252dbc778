package db

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"
)

// DashboardStats is the therapist overview. ImprovementRate is the
// percentage change of mean accuracy over the last 30 days against the 30
// days before, or 0 when either window is empty.
type DashboardStats struct {
	Patients        int         `json:"patients"`
	TotalSessions   int         `json:"total_sessions"`
	AvgAccuracy     float64     `json:"avg_accuracy"`
	AvgTime         float64     `json:"avg_time"`
	ImprovementRate float64     `json:"improvement_rate"`
	ByPrediction    map[int]int `json:"by_prediction"`
}

func (s *Store) DashboardStats(ctx context.Context, now time.Time) (*DashboardStats, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	stats := &DashboardStats{ByPrediction: make(map[int]int)}

	var avgAcc, avgTime sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(DISTINCT user_id), COUNT(*), AVG(accuracy), AVG(avg_time)
        FROM session_metrics`).Scan(&stats.Patients, &stats.TotalSessions, &avgAcc, &avgTime)
	if err != nil {
		return nil, fmt.Errorf("query totals: %w", err)
	}
	stats.AvgAccuracy = round1(avgAcc.Float64)
	stats.AvgTime = round1(avgTime.Float64)

	rows, err := s.db.QueryContext(ctx, `
        SELECT prediction, COUNT(*) FROM session_metrics GROUP BY prediction`)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var label, count int
		if err := rows.Scan(&label, &count); err != nil {
			return nil, fmt.Errorf("scan predictions: %w", err)
		}
		stats.ByPrediction[label] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now = now.UTC()
	last30 := now.AddDate(0, 0, -30)
	prev60 := now.AddDate(0, 0, -60)
	recent, err := s.averageAccuracy(ctx, last30, now.Add(time.Second))
	if err != nil {
		return nil, err
	}
	previous, err := s.averageAccuracy(ctx, prev60, last30)
	if err != nil {
		return nil, err
	}
	if recent.Valid && previous.Valid && previous.Float64 != 0 {
		stats.ImprovementRate = round1((recent.Float64 - previous.Float64) / previous.Float64 * 100)
	}
	return stats, nil
}

func (s *Store) averageAccuracy(ctx context.Context, from, to time.Time) (sql.NullFloat64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
        SELECT AVG(accuracy) FROM session_metrics
        WHERE created_at >= ? AND created_at < ?`, from, to).Scan(&avg)
	if err != nil {
		return avg, fmt.Errorf("query average accuracy: %w", err)
	}
	return avg, nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
