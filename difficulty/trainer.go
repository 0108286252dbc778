package difficulty

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"therapyportal/db"
	"therapyportal/ml"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultSamples   = 500
	DefaultModelPath = "ai_models/svm_model.json"
)

// TrainingRecorder persists a summary of each training run.
type TrainingRecorder interface {
	RecordTraining(ctx context.Context, log db.TrainingLog) error
}

// Trainer fits a classifier on synthetic sessions labelled by ml.LabelFor
// and writes it to Path.
type Trainer struct {
	Path      string
	ModelType string
	Samples   int
	// Seed makes the dataset reproducible. Zero seeds from the clock.
	Seed int64

	Recorder TrainingRecorder
	Logger   *zap.Logger
	Now      func() time.Time
}

// TrainingReport describes a finished training run.
type TrainingReport struct {
	ModelID     string        `json:"model_id"`
	ModelType   string        `json:"model_type"`
	Path        string        `json:"path"`
	Samples     int           `json:"samples"`
	Seed        int64         `json:"seed"`
	Accuracy    float64       `json:"training_accuracy"`
	ClassCounts map[int]int   `json:"class_counts"`
	Duration    time.Duration `json:"duration"`
	TrainedAt   time.Time     `json:"trained_at"`

	artifact *Artifact
	model    ml.MLModel
}

func (t *Trainer) Train(ctx context.Context) (*TrainingReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := t.logger()
	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	path := t.path()
	samples := t.Samples
	if samples <= 0 {
		samples = DefaultSamples
	}
	modelType := t.ModelType
	if modelType == "" {
		modelType = ml.ModelTypeSVM
	}

	start := time.Now()
	seed := t.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	features, labels := ml.Split(ml.SyntheticDataset(rand.New(rand.NewSource(seed)), samples))

	model, err := ml.NewModel(modelType)
	if err != nil {
		return nil, err
	}
	if err := model.Train(features, labels); err != nil {
		return nil, fmt.Errorf("train %s: %w", modelType, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	eval, err := ml.Evaluate(model, features, labels)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", modelType, err)
	}
	payload, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", modelType, err)
	}

	artifact := &Artifact{
		ModelID:          uuid.NewString(),
		ModelType:        modelType,
		LabelRuleVersion: ml.LabelRuleVersion,
		Features:         ml.FeatureNames(),
		TrainedAt:        now().UTC(),
		Samples:          samples,
		Seed:             seed,
		Accuracy:         eval.Accuracy,
		Model:            payload,
	}
	if err := WriteArtifact(path, artifact); err != nil {
		return nil, err
	}

	report := &TrainingReport{
		ModelID:     artifact.ModelID,
		ModelType:   modelType,
		Path:        path,
		Samples:     samples,
		Seed:        seed,
		Accuracy:    eval.Accuracy,
		ClassCounts: ml.ClassCounts(labels),
		Duration:    time.Since(start),
		TrainedAt:   artifact.TrainedAt,
		artifact:    artifact,
		model:       model,
	}
	logger.Info("model trained",
		zap.String("model_id", report.ModelID),
		zap.String("model_type", modelType),
		zap.String("path", path),
		zap.Int("samples", samples),
		zap.Float64("accuracy", eval.Accuracy),
		zap.Duration("duration", report.Duration))

	if t.Recorder != nil {
		entry := db.TrainingLog{
			ModelID:    report.ModelID,
			ModelName:  modelType,
			Accuracy:   report.Accuracy,
			Samples:    samples,
			Seed:       seed,
			DurationMs: report.Duration.Milliseconds(),
			TrainedAt:  report.TrainedAt,
		}
		if err := t.Recorder.RecordTraining(ctx, entry); err != nil {
			logger.Warn("record training failed", zap.Error(err))
		}
	}
	return report, nil
}

func (t *Trainer) path() string {
	if t.Path == "" {
		return DefaultModelPath
	}
	return t.Path
}

func (t *Trainer) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger
}
