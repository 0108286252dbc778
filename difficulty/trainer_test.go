package difficulty

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"therapyportal/db"
	"therapyportal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	logs []db.TrainingLog
	err  error

	// When set, RecordTraining signals entered and waits for release,
	// holding the training run open.
	entered chan struct{}
	release chan struct{}
}

func (r *recorder) RecordTraining(_ context.Context, log db.TrainingLog) error {
	if r.release != nil {
		r.entered <- struct{}{}
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

func TestTrainerWritesArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ai_models", "svm_model.json")
	rec := &recorder{}
	fixed := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	trainer := &Trainer{Path: path, Samples: 150, Seed: 11, Recorder: rec, Now: func() time.Time { return fixed }}

	report, err := trainer.Train(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, report.ModelID)
	assert.Equal(t, ml.ModelTypeSVM, report.ModelType)
	assert.Equal(t, 150, report.Samples)
	assert.Equal(t, fixed, report.TrainedAt)
	total := 0
	for _, n := range report.ClassCounts {
		total += n
	}
	assert.Equal(t, 150, total)

	artifact, model, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, report.ModelID, artifact.ModelID)
	assert.Equal(t, ml.LabelRuleVersion, artifact.LabelRuleVersion)
	assert.Equal(t, int64(11), artifact.Seed)
	assert.Equal(t, ml.FeatureNames(), artifact.Features)
	assert.True(t, model.Trained())

	require.Equal(t, 1, rec.count())
	assert.Equal(t, report.ModelID, rec.logs[0].ModelID)
	assert.Equal(t, "svm", rec.logs[0].ModelName)
}

func TestTrainerRecordsClockSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.json")
	rec := &recorder{}
	report, err := (&Trainer{Path: path, Samples: 60, Recorder: rec}).Train(context.Background())
	require.NoError(t, err)
	assert.NotZero(t, report.Seed)

	artifact, _, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, report.Seed, artifact.Seed)
	require.Equal(t, 1, rec.count())
	assert.Equal(t, report.Seed, rec.logs[0].Seed)
}

func TestTrainerSeedIsReproducible(t *testing.T) {
	dir := t.TempDir()
	train := func(name string) ml.MLModel {
		report, err := (&Trainer{Path: filepath.Join(dir, name), Samples: 120, Seed: 5}).Train(context.Background())
		require.NoError(t, err)
		return report.model
	}
	a, b := train("a.json"), train("b.json")
	for _, x := range [][]float64{{40, 900}, {90, 1500}, {20, 2900}, {75, 2100}} {
		la, ca, err := a.Predict(x)
		require.NoError(t, err)
		lb, cb, err := b.Predict(x)
		require.NoError(t, err)
		assert.Equal(t, la, lb)
		assert.InDelta(t, ca, cb, 1e-12)
	}
}

func TestTrainerRecorderFailureIsNotFatal(t *testing.T) {
	rec := &recorder{err: errors.New("disk full")}
	trainer := &Trainer{Path: filepath.Join(t.TempDir(), "m.json"), Samples: 80, Seed: 3, Recorder: rec}
	_, err := trainer.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count())
}

func TestTrainerDecisionTree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.json")
	report, err := (&Trainer{Path: path, ModelType: ml.ModelTypeDecisionTree, Seed: 8}).Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultSamples, report.Samples)
	assert.Greater(t, report.Accuracy, 0.7)

	artifact, _, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, ml.ModelTypeDecisionTree, artifact.ModelType)
}

func TestTrainerErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&Trainer{Path: filepath.Join(t.TempDir(), "m.json")}).Train(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = (&Trainer{Path: filepath.Join(t.TempDir(), "m.json"), ModelType: "perceptron"}).Train(context.Background())
	assert.Error(t, err)
}
