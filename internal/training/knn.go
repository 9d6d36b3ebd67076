package training

import (
	"context"
	"math"
	"sort"
)

// KNN is a k-nearest-neighbors classifier over Euclidean distance.
type KNN struct {
	Neighbors int
	// Distance weights votes by inverse distance instead of uniformly.
	Distance bool

	x [][]float64
	y []int
	k int
}

func (m *KNN) Fit(ctx context.Context, X [][]float64, y []int, k int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.x, m.y, m.k = X, y, k
	return nil
}

func (m *KNN) PredictProba(X [][]float64) [][]float64 {
	n := min(m.Neighbors, len(m.x))
	out := make([][]float64, len(X))
	idx := make([]int, len(m.x))
	dist := make([]float64, len(m.x))
	for r, row := range X {
		for i, train := range m.x {
			idx[i] = i
			s := 0.0
			for j, v := range row {
				d := v - train[j]
				s += d * d
			}
			dist[i] = math.Sqrt(s)
		}
		sort.Slice(idx, func(a, b int) bool { return dist[idx[a]] < dist[idx[b]] })

		votes := make([]float64, m.k)
		exact := false
		for _, i := range idx[:n] {
			if m.Distance && dist[i] == 0 {
				if !exact {
					clear(votes)
					exact = true
				}
				votes[m.y[i]]++
				continue
			}
			if exact {
				continue
			}
			w := 1.0
			if m.Distance {
				w = 1 / dist[i]
			}
			votes[m.y[i]] += w
		}
		out[r] = normalize(votes)
	}
	return out
}
