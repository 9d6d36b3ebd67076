package training

import (
	"context"
	"math"
	"math/rand/v2"
)

// GradientBoosting is multinomial-deviance gradient boosting with one
// regression tree per class per stage.
type GradientBoosting struct {
	LearningRate   float64
	MaxDepth       int
	MinSamplesLeaf int
	Subsample      float64

	rng    *rand.Rand
	init   []float64
	stages [][]*node
	raw    [][]float64
	k      int
}

// NewGradientBoosting returns an empty model seeded with seed.
func NewGradientBoosting(seed uint64) *GradientBoosting {
	return &GradientBoosting{
		LearningRate:   0.1,
		MaxDepth:       3,
		MinSamplesLeaf: 1,
		Subsample:      1,
		rng:            rand.New(rand.NewPCG(seed, 2)),
	}
}

// Size returns the number of boosting stages.
func (m *GradientBoosting) Size() int {
	return len(m.stages)
}

// Grow adds n stages. Training scores are cached between calls, so X and y
// must be the same each time.
func (m *GradientBoosting) Grow(ctx context.Context, X [][]float64, y []int, k, n int) error {
	if m.init == nil {
		m.k = k
		counts := make([]float64, k)
		for _, c := range y {
			counts[c]++
		}
		m.init = make([]float64, k)
		for c := range m.init {
			m.init[c] = math.Log((counts[c] + 1e-3) / (float64(len(y)) + 1e-3*float64(k)))
		}
		m.raw = make([][]float64, len(X))
		for i := range m.raw {
			m.raw[i] = append([]float64(nil), m.init...)
		}
	}

	cfg := treeConfig{maxDepth: m.MaxDepth, minSamplesSplit: 2, minSamplesLeaf: m.MinSamplesLeaf}
	residual := make([]float64, len(X))
	prob := make([][]float64, len(X))

	for stage := 0; stage < n; stage++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := range X {
			prob[i] = append(prob[i][:0], m.raw[i]...)
			softmax(prob[i])
		}
		idx := m.sample(len(X))

		trees := make([]*node, k)
		for c := 0; c < k; c++ {
			for i := range X {
				target := 0.0
				if y[i] == c {
					target = 1
				}
				residual[i] = target - prob[i][c]
			}
			trees[c] = growRegTree(X, residual, idx, 0, cfg, func(leaf []int) float64 {
				num, den := 0.0, 0.0
				for _, i := range leaf {
					r := residual[i]
					num += r
					den += math.Abs(r) * (1 - math.Abs(r))
				}
				if den < 1e-150 {
					return 0
				}
				return float64(k-1) / float64(k) * num / den
			})
		}
		for i, row := range X {
			for c, t := range trees {
				m.raw[i][c] += m.LearningRate * t.leaf(row).value[0]
			}
			if !finite(m.raw[i]...) {
				return ErrNumerical
			}
		}
		m.stages = append(m.stages, trees)
	}
	return nil
}

func (m *GradientBoosting) sample(n int) []int {
	if m.Subsample >= 1 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	size := max(1, int(m.Subsample*float64(n)))
	return m.rng.Perm(n)[:size]
}

func (m *GradientBoosting) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		p := append([]float64(nil), m.init...)
		for _, trees := range m.stages {
			for c, t := range trees {
				p[c] += m.LearningRate * t.leaf(row).value[0]
			}
		}
		softmax(p)
		out[i] = p
	}
	return out
}
