package ml

import "errors"

var (
	ErrEmptyDataset  = errors.New("dataset is empty")
	ErrShapeMismatch = errors.New("feature shape mismatch")
	ErrNotTrained    = errors.New("model not trained")
	ErrSingleClass   = errors.New("labels contain a single class")
)

// MLModel is a classifier over fixed-width feature vectors. Implementations
// are JSON-serializable so they can be embedded in a model artifact.
type MLModel interface {
	Train(features [][]float64, labels []int) error
	// Predict returns the predicted label and the model's confidence in it.
	Predict(features []float64) (int, float64, error)
	// Probabilities returns a per-class probability estimate keyed by label.
	Probabilities(features []float64) (map[int]float64, error)
	Trained() bool
}
