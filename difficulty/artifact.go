package difficulty

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"therapyportal/ml"
)

// Artifact is the on-disk form of a trained classifier.
type Artifact struct {
	ModelID          string          `json:"model_id"`
	ModelType        string          `json:"model_type"`
	LabelRuleVersion string          `json:"label_rule_version"`
	Features         []string        `json:"features,omitempty"`
	TrainedAt        time.Time       `json:"trained_at"`
	Samples          int             `json:"samples"`
	Seed             int64           `json:"seed"`
	Accuracy         float64         `json:"training_accuracy"`
	Model            json.RawMessage `json:"model"`
}

// Stale reports whether the artifact was trained under a different label
// rule or on a different feature layout. Artifacts that predate feature
// names are judged by the label rule alone.
func (a *Artifact) Stale() bool {
	if a.LabelRuleVersion != ml.LabelRuleVersion {
		return true
	}
	return len(a.Features) > 0 && !slices.Equal(a.Features, ml.FeatureNames())
}

// WriteArtifact replaces the file at path with a. The document is written
// to a temporary file in the same directory and renamed into place.
func WriteArtifact(path string, a *Artifact) error {
	payload, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace artifact: %w", err)
	}
	return nil
}

// LoadArtifact reads and decodes the artifact at path. A missing file is
// returned as an fs.ErrNotExist error; anything unreadable as JSON or as a
// trained model is ErrCorruptArtifact.
func LoadArtifact(path string) (*Artifact, ml.MLModel, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrCorruptArtifact, path, err)
	}
	if len(a.Model) == 0 {
		return nil, nil, fmt.Errorf("%w: %s: no model payload", ErrCorruptArtifact, path)
	}
	model, err := ml.DecodeModel(a.ModelType, a.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrCorruptArtifact, path, err)
	}
	return &a, model, nil
}
