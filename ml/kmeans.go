package ml

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

const (
	DefaultClusters = 3
	DefaultNInit    = 10

	defaultKMeansMaxIter = 300
	defaultKMeansTol     = 1e-4
)

// KMeans partitions rows into K clusters by Lloyd's algorithm. Fit runs NInit
// independent k-means++ initialisations and keeps the run with the lowest
// inertia (sum of squared distances to the assigned centroid).
type KMeans struct {
	K       int
	NInit   int
	MaxIter int
	Tol     float64
	Rand    *rand.Rand

	Centroids [][]float64
	Labels    []int
	Inertia   float64
}

func NewKMeans(k int) *KMeans {
	return &KMeans{K: k, NInit: DefaultNInit, MaxIter: defaultKMeansMaxIter, Tol: defaultKMeansTol}
}

func (km *KMeans) Fit(rows [][]float64) error {
	if _, err := CheckMatrix(rows); err != nil {
		return err
	}
	if km.K <= 0 {
		km.K = DefaultClusters
	}
	if km.NInit <= 0 {
		km.NInit = DefaultNInit
	}
	if km.MaxIter <= 0 {
		km.MaxIter = defaultKMeansMaxIter
	}
	if km.Tol <= 0 {
		km.Tol = defaultKMeansTol
	}
	rng := km.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	k := min(km.K, len(rows))

	// Tolerance is relative to the data's spread, per feature.
	tol := km.Tol * meanFeatureVariance(rows)

	bestInertia := math.Inf(1)
	for run := 0; run < km.NInit; run++ {
		centroids := seedPlusPlus(rows, k, rng)
		labels, inertia := lloyd(rows, centroids, km.MaxIter, tol)
		if inertia < bestInertia {
			bestInertia = inertia
			km.Centroids = centroids
			km.Labels = labels
		}
	}
	km.Inertia = bestInertia
	return nil
}

// Canonicalize renumbers clusters so that centroids ascend along axis.
// Cluster ids from Fit are otherwise arbitrary between runs.
func (km *KMeans) Canonicalize(axis int) {
	order := make([]int, len(km.Centroids))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return km.Centroids[order[a]][axis] < km.Centroids[order[b]][axis]
	})
	remap := make([]int, len(order))
	centroids := make([][]float64, len(order))
	for newID, oldID := range order {
		remap[oldID] = newID
		centroids[newID] = km.Centroids[oldID]
	}
	for i, l := range km.Labels {
		km.Labels[i] = remap[l]
	}
	km.Centroids = centroids
}

// Assign returns the index of the nearest centroid.
func (km *KMeans) Assign(row []float64) int {
	best, _ := nearest(row, km.Centroids)
	return best
}

func seedPlusPlus(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(rows[rng.Intn(len(rows))]))
	dist := make([]float64, len(rows))
	for i, row := range rows {
		dist[i] = squaredDistance(row, centroids[0])
	}
	for len(centroids) < k {
		total := 0.0
		for _, d := range dist {
			total += d
		}
		next := rng.Intn(len(rows))
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 {
					next = i
					break
				}
			}
		}
		c := clone(rows[next])
		centroids = append(centroids, c)
		for i, row := range rows {
			dist[i] = math.Min(dist[i], squaredDistance(row, c))
		}
	}
	return centroids
}

// lloyd refines centroids in place and returns the final assignment.
func lloyd(rows, centroids [][]float64, maxIter int, tol float64) ([]int, float64) {
	labels := make([]int, len(rows))
	width := len(rows[0])
	var inertia float64
	for iter := 0; iter < maxIter; iter++ {
		inertia = assign(rows, centroids, labels)

		sums := make([][]float64, len(centroids))
		counts := make([]int, len(centroids))
		for c := range sums {
			sums[c] = make([]float64, width)
		}
		for i, row := range rows {
			counts[labels[i]]++
			for f, v := range row {
				sums[labels[i]][f] += v
			}
		}

		shift := 0.0
		for c := range centroids {
			next := sums[c]
			if counts[c] == 0 {
				// Empty cluster: move it onto the point farthest from its centroid.
				next = clone(rows[farthest(rows, centroids, labels)])
			} else {
				for f := range next {
					next[f] /= float64(counts[c])
				}
			}
			shift += squaredDistance(centroids[c], next)
			centroids[c] = next
		}
		if shift <= tol {
			break
		}
	}
	inertia = assign(rows, centroids, labels)
	return labels, inertia
}

func assign(rows, centroids [][]float64, labels []int) float64 {
	inertia := 0.0
	for i, row := range rows {
		c, d := nearest(row, centroids)
		labels[i] = c
		inertia += d
	}
	return inertia
}

func nearest(row []float64, centroids [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(row, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

func farthest(rows, centroids [][]float64, labels []int) int {
	idx, far := 0, -1.0
	for i, row := range rows {
		if d := squaredDistance(row, centroids[labels[i]]); d > far {
			idx, far = i, d
		}
	}
	return idx
}

func meanFeatureVariance(rows [][]float64) float64 {
	width := len(rows[0])
	total := 0.0
	for f := 0; f < width; f++ {
		mean := 0.0
		for _, row := range rows {
			mean += row[f]
		}
		mean /= float64(len(rows))
		v := 0.0
		for _, row := range rows {
			d := row[f] - mean
			v += d * d
		}
		total += v / float64(len(rows))
	}
	return total / float64(width)
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
