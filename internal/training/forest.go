package training

import (
	"context"
	"math"
	"math/rand/v2"
)

// RandomForest is a bagged ensemble of Gini trees with per-split feature
// subsampling. Trees are added with Grow.
type RandomForest struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	// MaxFeatures is "sqrt", "log2", "all" or empty for sqrt.
	MaxFeatures string
	Bootstrap   bool

	rng   *rand.Rand
	trees []*node
	k     int
}

// NewRandomForest returns an empty forest seeded with seed.
func NewRandomForest(seed uint64) *RandomForest {
	return &RandomForest{
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		Bootstrap:       true,
		rng:             rand.New(rand.NewPCG(seed, 1)),
	}
}

// Size returns the number of trees.
func (m *RandomForest) Size() int {
	return len(m.trees)
}

// Grow adds n trees fit on X, y. It stops between trees once ctx is done.
func (m *RandomForest) Grow(ctx context.Context, X [][]float64, y []int, k, n int) error {
	m.k = k
	nf := len(X[0])
	cfg := treeConfig{
		maxDepth:        m.MaxDepth,
		minSamplesSplit: m.MinSamplesSplit,
		minSamplesLeaf:  m.MinSamplesLeaf,
		maxFeatures:     featureCount(m.MaxFeatures, nf),
		rng:             m.rng,
	}

	w := make([]float64, len(X))
	for t := 0; t < n; t++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		clear(w)
		var idx []int
		if m.Bootstrap {
			for range X {
				w[m.rng.IntN(len(X))]++
			}
		} else {
			for i := range w {
				w[i] = 1
			}
		}
		for i, v := range w {
			if v > 0 {
				idx = append(idx, i)
			}
		}
		m.trees = append(m.trees, growClassTree(X, y, w, k, idx, 0, cfg))
	}
	return nil
}

func (m *RandomForest) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		p := make([]float64, m.k)
		for _, t := range m.trees {
			for c, v := range t.leaf(row).value {
				p[c] += v
			}
		}
		out[i] = normalize(p)
	}
	return out
}

func featureCount(mode string, nf int) int {
	switch mode {
	case "all", "auto":
		return 0
	case "log2":
		return max(1, int(math.Log2(float64(nf))))
	default:
		return max(1, int(math.Sqrt(float64(nf))))
	}
}
