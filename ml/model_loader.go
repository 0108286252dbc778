package ml

import (
	"encoding/json"
	"fmt"
)

const (
	ModelTypeSVM          = "svm"
	ModelTypeDecisionTree = "decision_tree"
)

// NewModel returns an untrained model of the given type with default
// hyperparameters.
func NewModel(modelType string) (MLModel, error) {
	switch modelType {
	case ModelTypeSVM, "":
		return NewSVC(), nil
	case ModelTypeDecisionTree:
		return NewDecisionTree(DefaultMaxDepth), nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

// DecodeModel rebuilds a trained model from its JSON encoding.
func DecodeModel(modelType string, payload []byte) (MLModel, error) {
	model, err := NewModel(modelType)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, model); err != nil {
		return nil, fmt.Errorf("decode %s model: %w", modelType, err)
	}
	if !model.Trained() {
		return nil, fmt.Errorf("decode %s model: %w", modelType, ErrNotTrained)
	}
	return model, nil
}
