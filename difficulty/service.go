package difficulty

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"sync"
	"time"

	"therapyportal/ml"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
)

const DefaultCacheSize = 1024

// modelFlight keys every singleflight run that loads or trains the model.
const modelFlight = "model"

// Observer receives service events. monitoring.Metrics implements it.
type Observer interface {
	ObserveRecommendation(code int, cached bool)
	ObserveTraining(duration time.Duration, accuracy float64)
	ObserveModelLoad(source string)
}

type Options struct {
	// RetrainOnCorrupt replaces an unreadable artifact instead of failing.
	RetrainOnCorrupt bool
	CacheSize        int
	Locale           language.Tag
	Logger           *zap.Logger
	Observer         Observer
}

// Recommendation is the service's answer for one session.
type Recommendation struct {
	Code          int             `json:"code"`
	Text          string          `json:"recommendation"`
	Confidence    float64         `json:"confidence"`
	Probabilities map[int]float64 `json:"probabilities,omitempty"`
	ModelID       string          `json:"model_id"`
}

// ModelInfo describes the installed model.
type ModelInfo struct {
	Loaded           bool      `json:"loaded"`
	ModelID          string    `json:"model_id,omitempty"`
	ModelType        string    `json:"model_type,omitempty"`
	LabelRuleVersion string    `json:"label_rule_version,omitempty"`
	Features         []string  `json:"features,omitempty"`
	TrainedAt        time.Time `json:"trained_at,omitempty"`
	Samples          int       `json:"samples,omitempty"`
	Seed             int64     `json:"seed"`
	Accuracy         float64   `json:"training_accuracy,omitempty"`
	Path             string    `json:"path"`
}

type observation struct {
	accuracy float64
	avgTime  float64
	modelID  string
}

type loadedModel struct {
	artifact *Artifact
	model    ml.MLModel
}

// Service maps session metrics to difficulty recommendations. The model is
// loaded from the trainer's path, or trained there when none exists yet.
// Recommend is safe for concurrent use.
type Service struct {
	trainer *Trainer
	opts    Options
	logger  *zap.Logger

	mu      sync.RWMutex
	current *loadedModel

	group singleflight.Group
	cache *lru.Cache[observation, Recommendation]
}

func NewService(trainer *Trainer, opts Options) (*Service, error) {
	if trainer == nil {
		return nil, errors.New("trainer is required")
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Locale == language.Und {
		opts.Locale = language.English
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, err := lru.New[observation, Recommendation](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create recommendation cache: %w", err)
	}
	return &Service{trainer: trainer, opts: opts, logger: logger, cache: cache}, nil
}

// Init loads the model artifact, training a new one if it is missing or was
// built under a different label rule.
func (s *Service) Init(ctx context.Context) error {
	_, err := s.ensure(ctx)
	return err
}

// Recommend returns the difficulty adjustment for a session with the given
// accuracy (percent) and mean response time (ms). Values outside the
// training ranges are accepted.
func (s *Service) Recommend(ctx context.Context, accuracy, avgTime float64) (Recommendation, error) {
	x := ml.FeatureVector(accuracy, avgTime)
	if err := ml.CheckFinite(x); err != nil {
		return Recommendation{}, fmt.Errorf("%w: accuracy=%v avg_time=%v", ErrInvalidObservation, accuracy, avgTime)
	}
	cur, err := s.ensure(ctx)
	if err != nil {
		return Recommendation{}, err
	}

	key := observation{accuracy: accuracy, avgTime: avgTime, modelID: cur.artifact.ModelID}
	if rec, ok := s.cache.Get(key); ok {
		s.observeRecommendation(rec.Code, true)
		return copyRecommendation(rec), nil
	}

	code, confidence, err := cur.model.Predict(x)
	if err != nil {
		return Recommendation{}, fmt.Errorf("predict: %w", err)
	}
	probs, err := cur.model.Probabilities(x)
	if err != nil {
		return Recommendation{}, fmt.Errorf("probabilities: %w", err)
	}
	rec := Recommendation{
		Code:          code,
		Text:          LabelText(code, s.opts.Locale),
		Confidence:    confidence,
		Probabilities: probs,
		ModelID:       cur.artifact.ModelID,
	}
	s.cache.Add(key, rec)
	s.observeRecommendation(code, false)
	return copyRecommendation(rec), nil
}

// Retrain trains a fresh model, overwriting the artifact, and installs it.
// A retrain that overlaps a cold start shares its training run.
func (s *Service) Retrain(ctx context.Context) (*TrainingReport, error) {
	for {
		res, err := s.flight(ctx, func(ctx context.Context) (*flightResult, error) {
			report, err := s.train(ctx)
			if err != nil {
				return nil, err
			}
			return &flightResult{report: report, current: s.loaded()}, nil
		})
		if err != nil {
			return nil, err
		}
		// Joined a flight that loaded the artifact from disk; train now.
		if res.report != nil {
			return res.report, nil
		}
	}
}

// Reload re-reads the artifact from disk and installs it if it differs
// from the current model.
func (s *Service) Reload() error {
	artifact, model, err := LoadArtifact(s.trainer.path())
	if err != nil {
		return err
	}
	if artifact.Stale() {
		return fmt.Errorf("artifact %s uses label rule %q: %w", artifact.ModelID, artifact.LabelRuleVersion, ErrStaleArtifact)
	}
	if cur := s.loaded(); cur != nil && cur.artifact.ModelID == artifact.ModelID {
		return nil
	}
	s.install(artifact, model, "reload")
	return nil
}

// Watch reloads the model whenever the artifact file is replaced, for
// example by a separate train command. It returns once the watcher is
// registered; watching stops when ctx is cancelled.
func (s *Service) Watch(ctx context.Context) error {
	path := filepath.Clean(s.trainer.path())
	dir := filepath.Dir(path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path || !event.Has(fsnotify.Create|fsnotify.Write) {
					continue
				}
				if err := s.Reload(); err != nil {
					s.logger.Warn("model reload failed", zap.String("path", path), zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn("model watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// Info describes the installed model.
func (s *Service) Info() ModelInfo {
	info := ModelInfo{Path: s.trainer.path()}
	cur := s.loaded()
	if cur == nil {
		return info
	}
	a := cur.artifact
	info.Loaded = true
	info.ModelID = a.ModelID
	info.ModelType = a.ModelType
	info.LabelRuleVersion = a.LabelRuleVersion
	info.Features = a.Features
	info.TrainedAt = a.TrainedAt
	info.Samples = a.Samples
	info.Seed = a.Seed
	info.Accuracy = a.Accuracy
	return info
}

func (s *Service) ensure(ctx context.Context) (*loadedModel, error) {
	if cur := s.loaded(); cur != nil {
		return cur, nil
	}
	res, err := s.flight(ctx, func(ctx context.Context) (*flightResult, error) {
		if cur := s.loaded(); cur != nil {
			return &flightResult{current: cur}, nil
		}
		path := s.trainer.path()
		artifact, model, err := LoadArtifact(path)
		switch {
		case err == nil && !artifact.Stale():
			return &flightResult{current: s.install(artifact, model, "disk")}, nil
		case err == nil:
			s.logger.Info("model artifact is stale, retraining",
				zap.String("path", path),
				zap.String("label_rule_version", artifact.LabelRuleVersion))
		case errors.Is(err, fs.ErrNotExist):
			s.logger.Info("no model artifact, training", zap.String("path", path))
		case errors.Is(err, ErrCorruptArtifact) && s.opts.RetrainOnCorrupt:
			s.logger.Warn("model artifact is corrupt, retraining", zap.String("path", path), zap.Error(err))
		default:
			return nil, err
		}
		report, err := s.train(ctx)
		if err != nil {
			return nil, err
		}
		return &flightResult{report: report, current: s.loaded()}, nil
	})
	if err != nil {
		return nil, err
	}
	if res.current == nil {
		return nil, ErrNoModel
	}
	return res.current, nil
}

// flightResult is what a model flight hands to every caller sharing it.
// report is nil when the model came from disk.
type flightResult struct {
	report  *TrainingReport
	current *loadedModel
}

// flight runs fn once across concurrent loads and retrains. The run ignores
// the caller's cancellation; each caller stops waiting when its own ctx is
// done.
func (s *Service) flight(ctx context.Context, fn func(context.Context) (*flightResult, error)) (*flightResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(modelFlight, func() (any, error) {
		return fn(detached)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*flightResult), nil
	}
}

func (s *Service) train(ctx context.Context) (*TrainingReport, error) {
	report, err := s.trainer.Train(ctx)
	if err != nil {
		return nil, err
	}
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveTraining(report.Duration, report.Accuracy)
	}
	s.install(report.artifact, report.model, "train")
	return report, nil
}

func (s *Service) install(artifact *Artifact, model ml.MLModel, source string) *loadedModel {
	cur := &loadedModel{artifact: artifact, model: model}
	s.mu.Lock()
	s.current = cur
	s.mu.Unlock()
	s.cache.Purge()
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveModelLoad(source)
	}
	s.logger.Info("model installed",
		zap.String("model_id", artifact.ModelID),
		zap.String("model_type", artifact.ModelType),
		zap.String("source", source))
	return cur
}

func (s *Service) loaded() *loadedModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Service) observeRecommendation(code int, cached bool) {
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveRecommendation(code, cached)
	}
}

func copyRecommendation(rec Recommendation) Recommendation {
	rec.Probabilities = maps.Clone(rec.Probabilities)
	return rec
}
