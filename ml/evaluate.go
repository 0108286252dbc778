package ml

import "fmt"

// Evaluation summarises a model's predictions against known labels.
type Evaluation struct {
	Accuracy  float64         `json:"accuracy"`
	Precision map[int]float64 `json:"precision"`
	Recall    map[int]float64 `json:"recall"`
	Samples   int             `json:"samples"`
}

func Evaluate(model MLModel, features [][]float64, labels []int) (*Evaluation, error) {
	if len(features) == 0 {
		return nil, ErrEmptyDataset
	}
	if len(features) != len(labels) {
		return nil, fmt.Errorf("%d rows but %d labels: %w", len(features), len(labels), ErrShapeMismatch)
	}

	correct := 0
	truePos := make(map[int]int)
	predicted := make(map[int]int)
	actual := ClassCounts(labels)
	for i, row := range features {
		label, _, err := model.Predict(row)
		if err != nil {
			return nil, fmt.Errorf("predict row %d: %w", i, err)
		}
		predicted[label]++
		if label == labels[i] {
			correct++
			truePos[label]++
		}
	}

	eval := &Evaluation{
		Accuracy:  float64(correct) / float64(len(features)),
		Precision: make(map[int]float64),
		Recall:    make(map[int]float64),
		Samples:   len(features),
	}
	for class, n := range predicted {
		eval.Precision[class] = float64(truePos[class]) / float64(n)
	}
	for class, n := range actual {
		eval.Recall[class] = float64(truePos[class]) / float64(n)
	}
	return eval, nil
}
