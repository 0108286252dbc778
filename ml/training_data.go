package ml

import "math/rand"

const (
	LabelMaintain = 0
	LabelAdvance  = 1
	LabelRegress  = 2
)

// LabelRuleVersion identifies the rule implemented by LabelFor. It is stored
// alongside trained models; bump it whenever the thresholds change.
const LabelRuleVersion = "v1:adv(acc<80,t<1000);reg(acc<50,t>2000)"

const (
	MinAccuracy = 0.0
	MaxAccuracy = 100.0
	MinAvgTime  = 500.0
	MaxAvgTime  = 3000.0
)

// Example is one labelled observation of a play session.
type Example struct {
	Accuracy float64
	AvgTime  float64
	Label    int
}

// LabelFor applies the difficulty rule. The advance rule is checked before
// the regress rule and the first match wins.
func LabelFor(accuracy, avgTime float64) int {
	switch {
	case accuracy < 80 && avgTime < 1000:
		return LabelAdvance
	case accuracy < 50 && avgTime > 2000:
		return LabelRegress
	default:
		return LabelMaintain
	}
}

// SyntheticDataset draws n observations uniformly from the accuracy and
// response-time ranges and labels them with LabelFor.
func SyntheticDataset(rng *rand.Rand, n int) []Example {
	examples := make([]Example, n)
	for i := range examples {
		acc := MinAccuracy + rng.Float64()*(MaxAccuracy-MinAccuracy)
		t := MinAvgTime + rng.Float64()*(MaxAvgTime-MinAvgTime)
		examples[i] = Example{Accuracy: acc, AvgTime: t, Label: LabelFor(acc, t)}
	}
	return examples
}

// Split turns examples into a feature matrix and a label vector.
func Split(examples []Example) ([][]float64, []int) {
	features := make([][]float64, len(examples))
	labels := make([]int, len(examples))
	for i, e := range examples {
		features[i] = FeatureVector(e.Accuracy, e.AvgTime)
		labels[i] = e.Label
	}
	return features, labels
}

// ClassCounts tallies labels.
func ClassCounts(labels []int) map[int]int {
	counts := make(map[int]int)
	for _, l := range labels {
		counts[l]++
	}
	return counts
}
