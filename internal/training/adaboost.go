package training

import (
	"context"
	"math"
)

// AdaBoost is multi-class AdaBoost (SAMME) over decision stumps.
type AdaBoost struct {
	LearningRate float64

	stumps  []*node
	alphas  []float64
	weights []float64
	k       int
	done    bool
}

// Size returns the number of boosting rounds kept.
func (m *AdaBoost) Size() int {
	return len(m.stumps)
}

// Grow runs n more boosting rounds. Sample weights carry over between calls,
// so X and y must be the same each time. Boosting stops early once a stump
// is perfect or no better than chance.
func (m *AdaBoost) Grow(ctx context.Context, X [][]float64, y []int, k, n int) error {
	m.k = k
	if m.weights == nil {
		m.weights = make([]float64, len(X))
		for i := range m.weights {
			m.weights[i] = 1 / float64(len(X))
		}
	}
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	cfg := treeConfig{maxDepth: 1, minSamplesSplit: 2, minSamplesLeaf: 1}

	for round := 0; round < n && !m.done; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		stump := growClassTree(X, y, m.weights, k, idx, 0, cfg)

		wrong := make([]bool, len(X))
		errSum, total := 0.0, 0.0
		for i, row := range X {
			total += m.weights[i]
			if argmax(stump.leaf(row).value) != y[i] {
				wrong[i] = true
				errSum += m.weights[i]
			}
		}
		rate := errSum / total

		if rate <= 0 {
			m.stumps = append(m.stumps, stump)
			m.alphas = append(m.alphas, 1)
			m.done = true
			break
		}
		if rate >= 1-1/float64(k) {
			if len(m.stumps) == 0 {
				m.stumps = append(m.stumps, stump)
				m.alphas = append(m.alphas, 1)
			}
			m.done = true
			break
		}

		alpha := m.LearningRate * (math.Log((1-rate)/rate) + math.Log(float64(k-1)))
		m.stumps = append(m.stumps, stump)
		m.alphas = append(m.alphas, alpha)

		sum := 0.0
		for i := range m.weights {
			if wrong[i] {
				m.weights[i] *= math.Exp(alpha)
			}
			sum += m.weights[i]
		}
		for i := range m.weights {
			m.weights[i] /= sum
		}
	}
	return nil
}

func (m *AdaBoost) PredictProba(X [][]float64) [][]float64 {
	total := 0.0
	for _, a := range m.alphas {
		total += a
	}
	off := -1 / float64(m.k-1)
	out := make([][]float64, len(X))
	for i, row := range X {
		decision := make([]float64, m.k)
		for s, stump := range m.stumps {
			pred := argmax(stump.leaf(row).value)
			for c := range decision {
				if c == pred {
					decision[c] += m.alphas[s]
				} else {
					decision[c] += m.alphas[s] * off
				}
			}
		}
		for c := range decision {
			if total > 0 {
				decision[c] /= total
			}
			decision[c] /= float64(max(m.k-1, 1))
		}
		softmax(decision)
		out[i] = decision
	}
	return out
}
