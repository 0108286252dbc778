// Package cohort groups patients by their play-session metrics.
package cohort

import (
	"math/rand"

	"therapyportal/ml"
)

// MinRows is the smallest population that is clustered.
const MinRows = ml.DefaultClusters

// Cluster assigns each row of [accuracy, avg_time] metrics to one of three
// cohorts. Labels are returned in input order. Fewer than MinRows rows give
// an empty result and no error. Cohort ids are arbitrary between calls; use
// ClusterStable when ids must be comparable.
func Cluster(rows [][]float64) ([]int, error) {
	km, err := fit(rows, nil)
	if km == nil || err != nil {
		return []int{}, err
	}
	return km.Labels, nil
}

// ClusterStable is Cluster with cohort ids ordered by ascending centroid
// accuracy, so cohort 0 is always the lowest-accuracy group.
func ClusterStable(rows [][]float64) ([]int, error) {
	km, err := fit(rows, nil)
	if km == nil || err != nil {
		return []int{}, err
	}
	km.Canonicalize(0)
	return km.Labels, nil
}

func fit(rows [][]float64, rng *rand.Rand) (*ml.KMeans, error) {
	if len(rows) < MinRows {
		return nil, nil
	}
	km := ml.NewKMeans(ml.DefaultClusters)
	km.NInit = ml.DefaultNInit
	km.Rand = rng
	if err := km.Fit(rows); err != nil {
		return nil, err
	}
	return km, nil
}
