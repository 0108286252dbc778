package ml

import (
	"fmt"
	"math"
)

// FeatureNames names the columns of FeatureVector, in order.
func FeatureNames() []string {
	return []string{"accuracy", "avg_time"}
}

func FeatureVector(accuracy, avgTime float64) []float64 {
	return []float64{accuracy, avgTime}
}

// CheckMatrix verifies that rows is non-empty, rectangular and finite, and
// returns the row width.
func CheckMatrix(rows [][]float64) (int, error) {
	if len(rows) == 0 {
		return 0, ErrEmptyDataset
	}
	width := len(rows[0])
	if width == 0 {
		return 0, fmt.Errorf("row 0 is empty: %w", ErrShapeMismatch)
	}
	for i, row := range rows {
		if len(row) != width {
			return 0, fmt.Errorf("row %d has %d features, want %d: %w", i, len(row), width, ErrShapeMismatch)
		}
		if err := CheckFinite(row); err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return width, nil
}

func CheckFinite(values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("feature %d is not finite (%v): %w", i, v, ErrShapeMismatch)
		}
	}
	return nil
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// variance returns the population variance over every entry of rows.
func variance(rows [][]float64) float64 {
	n := 0
	mean := 0.0
	for _, row := range rows {
		for _, v := range row {
			mean += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean /= float64(n)
	sum := 0.0
	for _, row := range rows {
		for _, v := range row {
			d := v - mean
			sum += d * d
		}
	}
	return sum / float64(n)
}
