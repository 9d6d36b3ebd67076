package training

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
)

// SVM is a one-vs-rest linear support vector machine trained with Pegasos
// subgradient passes. The rbf kernel is approximated with random Fourier
// features. Probabilities are a softmax over class margins.
type SVM struct {
	C      float64
	Kernel string
	// Gamma is the rbf width; 0 means 1/n_features.
	Gamma float64
	// Components is the number of random Fourier features for rbf.
	Components int

	rng   *rand.Rand
	proj  [][]float64
	phase []float64
	w     [][]float64
	t     []int
}

// NewSVM returns an untrained SVM seeded with seed.
func NewSVM(seed uint64) *SVM {
	return &SVM{
		C:          1,
		Kernel:     "rbf",
		Components: 200,
		rng:        rand.New(rand.NewPCG(seed, 4)),
	}
}

func (m *SVM) setup(nf, k int) error {
	dim := nf
	switch m.Kernel {
	case "linear":
	case "rbf":
		gamma := m.Gamma
		if gamma <= 0 {
			gamma = 1 / float64(nf)
		}
		scale := math.Sqrt(2 * gamma)
		m.proj = matrix(m.Components, nf)
		m.phase = make([]float64, m.Components)
		for d := range m.proj {
			for j := range m.proj[d] {
				m.proj[d][j] = m.rng.NormFloat64() * scale
			}
			m.phase[d] = m.rng.Float64() * 2 * math.Pi
		}
		dim = m.Components
	default:
		return fmt.Errorf("%w: unsupported kernel %q", ErrInvalidParams, m.Kernel)
	}
	// One extra weight acts as the bias.
	m.w = matrix(k, dim+1)
	m.t = make([]int, k)
	return nil
}

func (m *SVM) features(x []float64) []float64 {
	var z []float64
	if m.proj == nil {
		z = append(make([]float64, 0, len(x)+1), x...)
	} else {
		z = make([]float64, len(m.proj), len(m.proj)+1)
		norm := math.Sqrt(2 / float64(len(m.proj)))
		for d, row := range m.proj {
			z[d] = norm * math.Cos(dot(row, x)+m.phase[d])
		}
	}
	return append(z, 1)
}

// Epoch makes one Pegasos pass per class over a shuffled ordering of X.
func (m *SVM) Epoch(ctx context.Context, X [][]float64, y []int, k int) error {
	if m.w == nil {
		if err := m.setup(len(X[0]), k); err != nil {
			return err
		}
	}
	Z := make([][]float64, len(X))
	for i, row := range X {
		Z[i] = m.features(row)
	}

	lambda := 1 / (m.C * float64(len(X)))
	radius := 1 / math.Sqrt(lambda)
	for c := 0; c < k; c++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := m.w[c]
		for _, i := range m.rng.Perm(len(Z)) {
			m.t[c]++
			eta := 1 / (lambda * float64(m.t[c]))
			label := -1.0
			if y[i] == c {
				label = 1
			}
			margin := label * dot(w, Z[i])
			shrink := 1 - eta*lambda
			for j := range w {
				w[j] *= shrink
			}
			if margin < 1 {
				for j, v := range Z[i] {
					w[j] += eta * label * v
				}
			}
			if norm := math.Sqrt(dot(w, w)); norm > radius {
				for j := range w {
					w[j] *= radius / norm
				}
			}
		}
		if !finite(w...) {
			return ErrNumerical
		}
	}
	return nil
}

// MarginViolations returns the fraction of rows whose own-class margin is
// below 1.
func (m *SVM) MarginViolations(X [][]float64, y []int) float64 {
	if len(X) == 0 {
		return 0
	}
	violations := 0
	for i, row := range X {
		if dot(m.w[y[i]], m.features(row)) < 1 {
			violations++
		}
	}
	return float64(violations) / float64(len(X))
}

func (m *SVM) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		z := m.features(row)
		scores := make([]float64, len(m.w))
		for c, w := range m.w {
			scores[c] = dot(w, z)
		}
		softmax(scores)
		out[i] = scores
	}
	return out
}
