package ml

import (
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blobs() ([][]float64, []int) {
	features := [][]float64{
		{0, 0}, {0.5, 0.2}, {0.2, 0.6}, {0.4, 0.4},
		{10, 0}, {10.5, 0.3}, {9.6, 0.2}, {10.2, 0.6},
		{0, 10}, {0.3, 10.4}, {0.6, 9.7}, {0.1, 10.2},
	}
	labels := []int{0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2}
	return features, labels
}

func TestSVCTwoClasses(t *testing.T) {
	features := [][]float64{{0, 0}, {0, 1}, {1, 0}, {5, 5}, {5, 6}, {6, 5}}
	labels := []int{0, 0, 0, 1, 1, 1}

	model := NewSVC()
	require.NoError(t, model.Train(features, labels))
	require.True(t, model.Trained())
	assert.Len(t, model.Machines, 1)

	label, confidence, err := model.Predict([]float64{0.2, 0.3})
	require.NoError(t, err)
	assert.Equal(t, 0, label)
	assert.Greater(t, confidence, 0.0)

	label, _, err = model.Predict([]float64{5.5, 5.5})
	require.NoError(t, err)
	assert.Equal(t, 1, label)
}

func TestSVCThreeClasses(t *testing.T) {
	features, labels := blobs()
	model := NewSVC()
	require.NoError(t, model.Train(features, labels))
	assert.Equal(t, []int{0, 1, 2}, model.Classes)
	assert.Len(t, model.Machines, 3)

	cases := map[int][]float64{
		0: {0.3, 0.3},
		1: {10, 0.4},
		2: {0.3, 10},
	}
	for want, x := range cases {
		got, _, err := model.Predict(x)
		require.NoError(t, err)
		assert.Equal(t, want, got, "point %v", x)

		probs, err := model.Probabilities(x)
		require.NoError(t, err)
		require.Len(t, probs, 3)
		sum := 0.0
		for _, p := range probs {
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
}

func TestSVCWithoutProbability(t *testing.T) {
	features, labels := blobs()
	model := NewSVC()
	model.Probability = false
	require.NoError(t, model.Train(features, labels))

	label, confidence, err := model.Predict([]float64{10, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, label)
	assert.InDelta(t, 2.0/3.0, confidence, 1e-9)
}

func TestSVCTrainErrors(t *testing.T) {
	model := NewSVC()
	assert.ErrorIs(t, model.Train(nil, nil), ErrEmptyDataset)
	assert.ErrorIs(t, model.Train([][]float64{{1, 2}, {3}}, []int{0, 1}), ErrShapeMismatch)
	assert.ErrorIs(t, model.Train([][]float64{{1, 2}, {3, 4}}, []int{0}), ErrShapeMismatch)
	assert.ErrorIs(t, model.Train([][]float64{{1, 2}, {3, 4}}, []int{1, 1}), ErrSingleClass)
	assert.ErrorIs(t, model.Train([][]float64{{1, math.NaN()}, {3, 4}}, []int{0, 1}), ErrShapeMismatch)
}

func TestSVCPredictErrors(t *testing.T) {
	_, _, err := NewSVC().Predict([]float64{1, 2})
	assert.ErrorIs(t, err, ErrNotTrained)

	features, labels := blobs()
	model := NewSVC()
	require.NoError(t, model.Train(features, labels))
	_, _, err = model.Predict([]float64{1})
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, _, err = model.Predict([]float64{1, math.Inf(1)})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestSVCDifficultyDataset(t *testing.T) {
	features, labels := Split(SyntheticDataset(rand.New(rand.NewSource(42)), 500))
	model := NewSVC()
	require.NoError(t, model.Train(features, labels))
	assert.Equal(t, []int{0, 1, 2}, model.Classes)

	// Mid-range response times are always labelled "maintain".
	label, _, err := model.Predict(FeatureVector(90, 1500))
	require.NoError(t, err)
	assert.Equal(t, LabelMaintain, label)

	eval, err := Evaluate(model, features, labels)
	require.NoError(t, err)
	assert.Equal(t, 500, eval.Samples)
	assert.Greater(t, eval.Accuracy, 0.6)
}

func TestSVCJSONRoundTrip(t *testing.T) {
	features, labels := blobs()
	model := NewSVC()
	require.NoError(t, model.Train(features, labels))

	payload, err := json.Marshal(model)
	require.NoError(t, err)
	decoded, err := DecodeModel(ModelTypeSVM, payload)
	require.NoError(t, err)

	for _, x := range features {
		want, wantConf, err := model.Predict(x)
		require.NoError(t, err)
		got, gotConf, err := decoded.Predict(x)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.InDelta(t, wantConf, gotConf, 1e-12)
	}
}

func TestDecodeModelErrors(t *testing.T) {
	_, err := DecodeModel(ModelTypeSVM, []byte("{not json"))
	assert.Error(t, err)

	_, err = DecodeModel(ModelTypeSVM, []byte(`{"c":1}`))
	assert.ErrorIs(t, err, ErrNotTrained)

	_, err = DecodeModel("perceptron", []byte(`{}`))
	assert.Error(t, err)
}

func TestCoupleProbabilitiesUniform(t *testing.T) {
	r := [][]float64{
		{0, 0.5, 0.5},
		{0.5, 0, 0.5},
		{0.5, 0.5, 0},
	}
	for _, p := range coupleProbabilities(r) {
		assert.InDelta(t, 1.0/3.0, p, 1e-6)
	}
}
