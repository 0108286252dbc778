package cohort

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"therapyportal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	averages []db.PatientAverage
	err      error
}

func (f fakeSource) PatientAverages(context.Context, time.Time) ([]db.PatientAverage, error) {
	return f.averages, f.err
}

func TestReporterBuild(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	source := fakeSource{averages: []db.PatientAverage{
		{UserID: 1, Accuracy: 94, AvgTime: 620, Sessions: 4},
		{UserID: 2, Accuracy: 22, AvgTime: 2750, Sessions: 2},
		{UserID: 3, Accuracy: 61, AvgTime: 1480, Sessions: 3},
		{UserID: 4, Accuracy: 96, AvgTime: 590, Sessions: 1},
		{UserID: 5, Accuracy: 58, AvgTime: 1530, Sessions: 5},
	}}
	reporter := &Reporter{Source: source, Seed: 1, Now: func() time.Time { return now }}

	report, err := reporter.Build(context.Background(), now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, 5, report.Patients)
	assert.Equal(t, now, report.GeneratedAt)
	require.Len(t, report.Cohorts, 3)

	assert.Equal(t, []int64{2}, report.Cohorts[0].Members)
	assert.Equal(t, []int64{3, 5}, report.Cohorts[1].Members)
	assert.Equal(t, []int64{1, 4}, report.Cohorts[2].Members)
	assert.Equal(t, 2, report.Cohorts[2].Size)
	assert.InDelta(t, 95.0, report.Cohorts[2].MeanAccuracy, 1e-9)
	assert.InDelta(t, 605.0, report.Cohorts[2].MeanAvgTime, 1e-9)
}

func TestReporterTooFewPatients(t *testing.T) {
	reporter := &Reporter{Source: fakeSource{averages: []db.PatientAverage{{UserID: 1, Accuracy: 50, AvgTime: 1000}}}}
	report, err := reporter.Build(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Patients)
	assert.Empty(t, report.Cohorts)
}

func TestReporterSourceError(t *testing.T) {
	reporter := &Reporter{Source: fakeSource{err: errors.New("locked")}}
	_, err := reporter.Build(context.Background(), time.Now())
	assert.Error(t, err)
}

func TestReporterWithStore(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "portal.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	for i, m := range []db.SessionMetric{
		{UserID: 10, Accuracy: 90, AvgTime: 700},
		{UserID: 11, Accuracy: 30, AvgTime: 2600},
		{UserID: 12, Accuracy: 60, AvgTime: 1500},
	} {
		m.CreatedAt = now.Add(-time.Duration(i+1) * time.Hour)
		require.NoError(t, store.SaveSessionMetric(ctx, &m))
	}

	report, err := (&Reporter{Source: store, Seed: 2}).Build(ctx, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, report.Cohorts, 3)
	assert.Equal(t, []int64{11}, report.Cohorts[0].Members)
	assert.Equal(t, []int64{12}, report.Cohorts[1].Members)
	assert.Equal(t, []int64{10}, report.Cohorts[2].Members)
}
