package cohort

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"therapyportal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinceSource struct {
	mu     sync.Mutex
	since  []time.Time
	failed bool
}

func (s *sinceSource) PatientAverages(_ context.Context, since time.Time) ([]db.PatientAverage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.since = append(s.since, since)
	if !s.failed {
		s.failed = true
		return nil, errors.New("database is locked")
	}
	return []db.PatientAverage{
		{UserID: 1, Accuracy: 90, AvgTime: 700},
		{UserID: 2, Accuracy: 30, AvgTime: 2600},
		{UserID: 3, Accuracy: 60, AvgTime: 1500},
	}, nil
}

func TestScheduleRebuildsReports(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	source := &sinceSource{}
	reports := make(chan *Report, 4)
	schedule := &Schedule{
		Reporter: &Reporter{Source: source, Seed: 3, Now: func() time.Time { return now }},
		Interval: 10 * time.Millisecond,
		Lookback: 30 * 24 * time.Hour,
		Sink: func(r *Report) {
			select {
			case reports <- r:
			default:
			}
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go schedule.Run(ctx)

	var report *Report
	select {
	case report = <-reports:
	case <-time.After(2 * time.Second):
		t.Fatal("no scheduled report")
	}
	assert.Equal(t, 3, report.Patients)
	assert.Len(t, report.Cohorts, 3)

	source.mu.Lock()
	defer source.mu.Unlock()
	require.GreaterOrEqual(t, len(source.since), 2, "a failed build is retried on the next tick")
	assert.Equal(t, now.AddDate(0, 0, -30), source.since[0])
}
