package cohort

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"therapyportal/db"
	"therapyportal/ml"

	"go.uber.org/zap"
)

// AverageSource supplies per-patient metric averages.
type AverageSource interface {
	PatientAverages(ctx context.Context, since time.Time) ([]db.PatientAverage, error)
}

type Cohort struct {
	ID           int     `json:"id"`
	Size         int     `json:"size"`
	Members      []int64 `json:"members"`
	MeanAccuracy float64 `json:"mean_accuracy"`
	MeanAvgTime  float64 `json:"mean_avg_time"`
}

type Report struct {
	Since       time.Time `json:"since"`
	GeneratedAt time.Time `json:"generated_at"`
	Patients    int       `json:"patients"`
	Cohorts     []Cohort  `json:"cohorts"`
}

// Reporter builds cohort reports from stored session metrics.
type Reporter struct {
	Source AverageSource
	Logger *zap.Logger
	// Seed fixes k-means initialisation. Zero seeds from the clock.
	Seed int64
	Now  func() time.Time
}

// Build clusters every patient with sessions since the given time. Fewer
// than MinRows patients yields a report with no cohorts.
func (r *Reporter) Build(ctx context.Context, since time.Time) (*Report, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	averages, err := r.Source.PatientAverages(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load patient averages: %w", err)
	}
	report := &Report{
		Since:       since.UTC(),
		GeneratedAt: now().UTC(),
		Patients:    len(averages),
		Cohorts:     []Cohort{},
	}

	rows := make([][]float64, len(averages))
	for i, a := range averages {
		rows[i] = ml.FeatureVector(a.Accuracy, a.AvgTime)
	}
	var rng *rand.Rand
	if r.Seed != 0 {
		rng = rand.New(rand.NewSource(r.Seed))
	}
	km, err := fit(rows, rng)
	if err != nil {
		return nil, fmt.Errorf("cluster patients: %w", err)
	}
	if km == nil {
		r.logger().Info("too few patients to cluster", zap.Int("patients", len(rows)))
		return report, nil
	}
	km.Canonicalize(0)

	cohorts := make([]Cohort, len(km.Centroids))
	for id, centroid := range km.Centroids {
		cohorts[id] = Cohort{ID: id, Members: []int64{}, MeanAccuracy: centroid[0], MeanAvgTime: centroid[1]}
	}
	for i, label := range km.Labels {
		cohorts[label].Members = append(cohorts[label].Members, averages[i].UserID)
		cohorts[label].Size++
	}
	report.Cohorts = cohorts

	r.logger().Info("cohort report built",
		zap.Int("patients", len(rows)),
		zap.Int("cohorts", len(cohorts)),
		zap.Float64("inertia", km.Inertia))
	return report, nil
}

func (r *Reporter) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
