package difficulty

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"therapyportal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainedTree(t *testing.T) json.RawMessage {
	t.Helper()
	tree := ml.NewDecisionTree(3)
	require.NoError(t, tree.Train([][]float64{{90, 600}, {20, 2800}, {70, 900}}, []int{0, 2, 1}))
	payload, err := json.Marshal(tree)
	require.NoError(t, err)
	return payload
}

func TestWriteAndLoadArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "model.json")
	a := &Artifact{
		ModelID:          "abc",
		ModelType:        ml.ModelTypeDecisionTree,
		LabelRuleVersion: ml.LabelRuleVersion,
		TrainedAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Samples:          3,
		Seed:             9,
		Model:            trainedTree(t),
	}
	require.NoError(t, WriteArtifact(path, a))

	loaded, model, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", loaded.ModelID)
	assert.Equal(t, int64(9), loaded.Seed)
	assert.False(t, loaded.Stale())
	label, _, err := model.Predict([]float64{20, 2800})
	require.NoError(t, err)
	assert.Equal(t, 2, label)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestWriteArtifactReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	for _, id := range []string{"first", "second"} {
		require.NoError(t, WriteArtifact(path, &Artifact{
			ModelID:          id,
			ModelType:        ml.ModelTypeDecisionTree,
			LabelRuleVersion: ml.LabelRuleVersion,
			Model:            trainedTree(t),
		}))
	}
	loaded, _, err := LoadArtifact(path)
	require.NoError(t, err)
	assert.Equal(t, "second", loaded.ModelID)
}

func TestLoadArtifactErrors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := LoadArtifact(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	garbage := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte("\x00\x01not json"), 0o644))
	_, _, err = LoadArtifact(garbage)
	assert.ErrorIs(t, err, ErrCorruptArtifact)

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"model_id":"x","model_type":"svm"}`), 0o644))
	_, _, err = LoadArtifact(empty)
	assert.ErrorIs(t, err, ErrCorruptArtifact)

	untrained := filepath.Join(dir, "untrained.json")
	require.NoError(t, os.WriteFile(untrained, []byte(`{"model_type":"svm","model":{"c":1}}`), 0o644))
	_, _, err = LoadArtifact(untrained)
	assert.ErrorIs(t, err, ErrCorruptArtifact)
	assert.ErrorIs(t, err, ml.ErrNotTrained)
}

func TestArtifactStale(t *testing.T) {
	assert.True(t, (&Artifact{LabelRuleVersion: "v0"}).Stale())
	assert.False(t, (&Artifact{LabelRuleVersion: ml.LabelRuleVersion}).Stale())
	assert.False(t, (&Artifact{LabelRuleVersion: ml.LabelRuleVersion, Features: ml.FeatureNames()}).Stale())
	assert.True(t, (&Artifact{LabelRuleVersion: ml.LabelRuleVersion, Features: []string{"avg_time", "accuracy"}}).Stale())
}
