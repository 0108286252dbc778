package ml

import (
	"fmt"
	"math"
	"sort"
)

const (
	defaultC       = 1.0
	defaultTol     = 1e-3
	defaultMaxIter = 1_000_000

	tau     = 1e-12
	minProb = 1e-7
)

// SVC is a support-vector classifier with a radial-basis-function kernel.
// Multi-class problems are split one-vs-one and decided by voting. With
// Probability set, each pairwise machine also fits a Platt sigmoid and
// Probabilities couples the pairwise estimates into a distribution.
type SVC struct {
	C           float64 `json:"c"`
	Gamma       float64 `json:"gamma"` // <= 0 selects 1/(n_features*Var(X))
	Tol         float64 `json:"tol"`
	MaxIter     int     `json:"max_iter"`
	Probability bool    `json:"probability"`

	Features    int             `json:"features"`
	Classes     []int           `json:"classes"`
	FittedGamma float64         `json:"fitted_gamma"`
	Machines    []BinaryMachine `json:"machines"`
}

// BinaryMachine separates Positive (decision > 0) from Negative.
type BinaryMachine struct {
	Positive       int         `json:"positive"`
	Negative       int         `json:"negative"`
	SupportVectors [][]float64 `json:"support_vectors"`
	Coef           []float64   `json:"coef"`
	Rho            float64     `json:"rho"`
	ProbA          float64     `json:"prob_a"`
	ProbB          float64     `json:"prob_b"`
}

func NewSVC() *SVC {
	return &SVC{
		C:           defaultC,
		Tol:         defaultTol,
		MaxIter:     defaultMaxIter,
		Probability: true,
	}
}

func (s *SVC) Trained() bool {
	return len(s.Machines) > 0 && s.FittedGamma > 0 && s.Features > 0
}

func (s *SVC) Train(features [][]float64, labels []int) error {
	width, err := CheckMatrix(features)
	if err != nil {
		return err
	}
	if len(features) != len(labels) {
		return fmt.Errorf("%d rows but %d labels: %w", len(features), len(labels), ErrShapeMismatch)
	}
	classes := uniqueSorted(labels)
	if len(classes) < 2 {
		return ErrSingleClass
	}

	if s.C <= 0 {
		s.C = defaultC
	}
	if s.Tol <= 0 {
		s.Tol = defaultTol
	}
	if s.MaxIter <= 0 {
		s.MaxIter = defaultMaxIter
	}
	gamma := s.Gamma
	if gamma <= 0 {
		gamma = 1
		if v := variance(features); v > 0 {
			gamma = 1 / (float64(width) * v)
		}
	}

	machines := make([]BinaryMachine, 0, len(classes)*(len(classes)-1)/2)
	for i := 0; i < len(classes); i++ {
		for j := i + 1; j < len(classes); j++ {
			var x [][]float64
			var y []float64
			for k, label := range labels {
				switch label {
				case classes[i]:
					x = append(x, features[k])
					y = append(y, 1)
				case classes[j]:
					x = append(x, features[k])
					y = append(y, -1)
				}
			}
			m := trainBinary(x, y, gamma, s.C, s.Tol, s.MaxIter)
			m.Positive, m.Negative = classes[i], classes[j]
			if s.Probability {
				dec := make([]float64, len(x))
				for k := range x {
					dec[k] = m.decision(x[k], gamma)
				}
				m.ProbA, m.ProbB = fitSigmoid(dec, y)
			}
			machines = append(machines, m)
		}
	}

	s.Features = width
	s.Classes = classes
	s.FittedGamma = gamma
	s.Machines = machines
	return nil
}

func (s *SVC) Predict(features []float64) (int, float64, error) {
	if err := s.checkInput(features); err != nil {
		return 0, 0, err
	}
	votes := make(map[int]int, len(s.Classes))
	for i := range s.Machines {
		m := &s.Machines[i]
		if m.decision(features, s.FittedGamma) > 0 {
			votes[m.Positive]++
		} else {
			votes[m.Negative]++
		}
	}
	best := s.Classes[0]
	for _, c := range s.Classes[1:] {
		if votes[c] > votes[best] {
			best = c
		}
	}
	if !s.Probability {
		return best, float64(votes[best]) / float64(len(s.Machines)), nil
	}
	probs, err := s.Probabilities(features)
	if err != nil {
		return 0, 0, err
	}
	return best, probs[best], nil
}

func (s *SVC) Probabilities(features []float64) (map[int]float64, error) {
	if err := s.checkInput(features); err != nil {
		return nil, err
	}
	k := len(s.Classes)
	out := make(map[int]float64, k)
	if !s.Probability {
		for i := range s.Machines {
			m := &s.Machines[i]
			if m.decision(features, s.FittedGamma) > 0 {
				out[m.Positive]++
			} else {
				out[m.Negative]++
			}
		}
		for c := range out {
			out[c] /= float64(len(s.Machines))
		}
		return out, nil
	}

	index := make(map[int]int, k)
	for i, c := range s.Classes {
		index[c] = i
	}
	r := make([][]float64, k)
	for i := range r {
		r[i] = make([]float64, k)
	}
	for i := range s.Machines {
		m := &s.Machines[i]
		p := sigmoidPredict(m.decision(features, s.FittedGamma), m.ProbA, m.ProbB)
		p = math.Min(math.Max(p, minProb), 1-minProb)
		a, b := index[m.Positive], index[m.Negative]
		r[a][b] = p
		r[b][a] = 1 - p
	}

	var p []float64
	if k == 2 {
		p = []float64{r[0][1], r[1][0]}
	} else {
		p = coupleProbabilities(r)
	}
	for i, c := range s.Classes {
		out[c] = p[i]
	}
	return out, nil
}

func (s *SVC) checkInput(features []float64) error {
	if !s.Trained() {
		return ErrNotTrained
	}
	if len(features) != s.Features {
		return fmt.Errorf("got %d features, want %d: %w", len(features), s.Features, ErrShapeMismatch)
	}
	return CheckFinite(features)
}

func (m *BinaryMachine) decision(x []float64, gamma float64) float64 {
	sum := 0.0
	for i, sv := range m.SupportVectors {
		sum += m.Coef[i] * rbf(sv, x, gamma)
	}
	return sum - m.Rho
}

func rbf(a, b []float64, gamma float64) float64 {
	return math.Exp(-gamma * squaredDistance(a, b))
}

// trainBinary solves the C-SVC dual for labels y in {+1,-1} with SMO, using
// maximal-violating-pair working set selection.
func trainBinary(x [][]float64, y []float64, gamma, c, tol float64, maxIter int) BinaryMachine {
	n := len(x)
	q := make([][]float64, n)
	for i := range q {
		q[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := y[i] * y[j] * rbf(x[i], x[j], gamma)
			q[i][j] = v
			q[j][i] = v
		}
	}

	alpha := make([]float64, n)
	grad := make([]float64, n)
	for i := range grad {
		grad[i] = -1
	}
	for iter := 0; iter < maxIter; iter++ {
		i, j, ok := selectWorkingSet(alpha, grad, y, c, tol)
		if !ok {
			break
		}
		updatePair(q, alpha, grad, y, c, i, j)
	}

	m := BinaryMachine{Rho: computeRho(alpha, grad, y, c)}
	for i, a := range alpha {
		if a > 0 {
			m.SupportVectors = append(m.SupportVectors, append([]float64(nil), x[i]...))
			m.Coef = append(m.Coef, a*y[i])
		}
	}
	return m
}

func inUpSet(a, y, c float64) bool {
	return (y > 0 && a < c) || (y < 0 && a > 0)
}

func inLowSet(a, y, c float64) bool {
	return (y > 0 && a > 0) || (y < 0 && a < c)
}

func selectWorkingSet(alpha, grad, y []float64, c, tol float64) (int, int, bool) {
	gmax, gmin := math.Inf(-1), math.Inf(1)
	i, j := -1, -1
	for t := range alpha {
		v := -y[t] * grad[t]
		if inUpSet(alpha[t], y[t], c) && v >= gmax {
			gmax, i = v, t
		}
		if inLowSet(alpha[t], y[t], c) && v <= gmin {
			gmin, j = v, t
		}
	}
	if i < 0 || j < 0 || gmax-gmin < tol {
		return 0, 0, false
	}
	return i, j, true
}

// updatePair solves the two-variable subproblem analytically, clips to the
// box [0, c] and refreshes the gradient.
func updatePair(q [][]float64, alpha, grad, y []float64, c float64, i, j int) {
	oldI, oldJ := alpha[i], alpha[j]
	if y[i] != y[j] {
		quad := q[i][i] + q[j][j] + 2*q[i][j]
		if quad <= 0 {
			quad = tau
		}
		delta := (-grad[i] - grad[j]) / quad
		diff := alpha[i] - alpha[j]
		alpha[i] += delta
		alpha[j] += delta
		if diff > 0 {
			if alpha[j] < 0 {
				alpha[j] = 0
				alpha[i] = diff
			}
			if alpha[i] > c {
				alpha[i] = c
				alpha[j] = c - diff
			}
		} else {
			if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = -diff
			}
			if alpha[j] > c {
				alpha[j] = c
				alpha[i] = c + diff
			}
		}
	} else {
		quad := q[i][i] + q[j][j] - 2*q[i][j]
		if quad <= 0 {
			quad = tau
		}
		delta := (grad[i] - grad[j]) / quad
		sum := alpha[i] + alpha[j]
		alpha[i] -= delta
		alpha[j] += delta
		if sum > c {
			if alpha[i] > c {
				alpha[i] = c
				alpha[j] = sum - c
			}
			if alpha[j] > c {
				alpha[j] = c
				alpha[i] = sum - c
			}
		} else {
			if alpha[j] < 0 {
				alpha[j] = 0
				alpha[i] = sum
			}
			if alpha[i] < 0 {
				alpha[i] = 0
				alpha[j] = sum
			}
		}
	}

	dI, dJ := alpha[i]-oldI, alpha[j]-oldJ
	for k := range grad {
		grad[k] += q[i][k]*dI + q[j][k]*dJ
	}
}

func computeRho(alpha, grad, y []float64, c float64) float64 {
	ub, lb := math.Inf(1), math.Inf(-1)
	free, sumFree := 0, 0.0
	for i, a := range alpha {
		yg := y[i] * grad[i]
		switch {
		case a >= c:
			if y[i] < 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		case a <= 0:
			if y[i] > 0 {
				ub = math.Min(ub, yg)
			} else {
				lb = math.Max(lb, yg)
			}
		default:
			free++
			sumFree += yg
		}
	}
	if free > 0 {
		return sumFree / float64(free)
	}
	return (ub + lb) / 2
}

// fitSigmoid fits P(y=+1|f) = 1/(1+exp(A*f+B)) to decision values with
// Newton's method and backtracking line search.
func fitSigmoid(dec, y []float64) (float64, float64) {
	const (
		maxIter = 100
		minStep = 1e-10
		sigma   = 1e-12
		eps     = 1e-5
	)
	prior1, prior0 := 0.0, 0.0
	for _, v := range y {
		if v > 0 {
			prior1++
		} else {
			prior0++
		}
	}
	hiTarget := (prior1 + 1) / (prior1 + 2)
	loTarget := 1 / (prior0 + 2)
	t := make([]float64, len(y))
	for i, v := range y {
		if v > 0 {
			t[i] = hiTarget
		} else {
			t[i] = loTarget
		}
	}

	objective := func(a, b float64) float64 {
		f := 0.0
		for i := range dec {
			fApB := dec[i]*a + b
			if fApB >= 0 {
				f += t[i]*fApB + math.Log1p(math.Exp(-fApB))
			} else {
				f += (t[i]-1)*fApB + math.Log1p(math.Exp(fApB))
			}
		}
		return f
	}

	a, b := 0.0, math.Log((prior0+1)/(prior1+1))
	fval := objective(a, b)
	for iter := 0; iter < maxIter; iter++ {
		h11, h22, h21, g1, g2 := sigma, sigma, 0.0, 0.0, 0.0
		for i := range dec {
			fApB := dec[i]*a + b
			var p, q float64
			if fApB >= 0 {
				e := math.Exp(-fApB)
				p = e / (1 + e)
				q = 1 / (1 + e)
			} else {
				e := math.Exp(fApB)
				p = 1 / (1 + e)
				q = e / (1 + e)
			}
			d2 := p * q
			h11 += dec[i] * dec[i] * d2
			h22 += d2
			h21 += dec[i] * d2
			d1 := t[i] - p
			g1 += dec[i] * d1
			g2 += d1
		}
		if math.Abs(g1) < eps && math.Abs(g2) < eps {
			break
		}

		det := h11*h22 - h21*h21
		dA := -(h22*g1 - h21*g2) / det
		dB := -(-h21*g1 + h11*g2) / det
		gd := g1*dA + g2*dB

		step := 1.0
		for step >= minStep {
			newA, newB := a+step*dA, b+step*dB
			newf := objective(newA, newB)
			if newf < fval+0.0001*step*gd {
				a, b, fval = newA, newB, newf
				break
			}
			step /= 2
		}
		if step < minStep {
			break
		}
	}
	return a, b
}

func sigmoidPredict(dec, a, b float64) float64 {
	fApB := dec*a + b
	if fApB >= 0 {
		e := math.Exp(-fApB)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(fApB))
}

// coupleProbabilities combines pairwise estimates r[i][j] ~ P(i | i or j)
// into class probabilities (Wu, Lin and Weng, method 2).
func coupleProbabilities(r [][]float64) []float64 {
	k := len(r)
	p := make([]float64, k)
	qp := make([]float64, k)
	q := make([][]float64, k)
	for i := range q {
		q[i] = make([]float64, k)
	}
	for t := 0; t < k; t++ {
		p[t] = 1 / float64(k)
		for j := 0; j < t; j++ {
			q[t][t] += r[j][t] * r[j][t]
			q[t][j] = q[j][t]
		}
		for j := t + 1; j < k; j++ {
			q[t][t] += r[j][t] * r[j][t]
			q[t][j] = -r[j][t] * r[t][j]
		}
	}

	maxIter := max(100, k)
	eps := 0.005 / float64(k)
	for iter := 0; iter < maxIter; iter++ {
		pQp := 0.0
		for t := 0; t < k; t++ {
			qp[t] = 0
			for j := 0; j < k; j++ {
				qp[t] += q[t][j] * p[j]
			}
			pQp += p[t] * qp[t]
		}
		maxErr := 0.0
		for t := 0; t < k; t++ {
			maxErr = math.Max(maxErr, math.Abs(qp[t]-pQp))
		}
		if maxErr < eps {
			break
		}
		for t := 0; t < k; t++ {
			diff := (-qp[t] + pQp) / q[t][t]
			p[t] += diff
			pQp = (pQp + diff*(diff*q[t][t]+2*qp[t])) / (1 + diff) / (1 + diff)
			for j := 0; j < k; j++ {
				qp[j] = (qp[j] + diff*q[t][j]) / (1 + diff)
				p[j] /= 1 + diff
			}
		}
	}
	return p
}

func uniqueSorted(labels []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Ints(out)
	return out
}
