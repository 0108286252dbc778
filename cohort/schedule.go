package cohort

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Schedule re-clusters the population on a fixed interval.
type Schedule struct {
	Reporter *Reporter
	Interval time.Duration
	// Lookback bounds the sessions each report considers.
	Lookback time.Duration
	// Sink receives every report that builds successfully.
	Sink func(*Report)
}

// Run builds a report every Interval until ctx is cancelled. Failed builds
// are logged and retried on the next tick.
func (s *Schedule) Run(ctx context.Context) {
	logger := s.Reporter.logger()
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	logger.Info("cohort schedule started", zap.Duration("interval", s.Interval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, logger)
		}
	}
}

func (s *Schedule) tick(ctx context.Context, logger *zap.Logger) {
	now := time.Now
	if s.Reporter.Now != nil {
		now = s.Reporter.Now
	}
	report, err := s.Reporter.Build(ctx, now().Add(-s.Lookback))
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("scheduled cohort report failed", zap.Error(err))
		}
		return
	}
	if s.Sink != nil {
		s.Sink(report)
	}
}
