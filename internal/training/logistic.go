package training

import "context"

// LogisticRegression is multinomial logistic regression with L2
// regularization, fit by full-batch gradient descent.
type LogisticRegression struct {
	C            float64
	MaxIter      int
	LearningRate float64

	w [][]float64
	b []float64
}

func (m *LogisticRegression) Fit(ctx context.Context, X [][]float64, y []int, k int) error {
	nf := len(X[0])
	n := float64(len(X))
	m.w = make([][]float64, k)
	for c := range m.w {
		m.w[c] = make([]float64, nf)
	}
	m.b = make([]float64, k)

	lr := m.LearningRate
	if lr <= 0 {
		lr = 0.5
	}
	reg := 1 / (m.C * n)

	gw := make([][]float64, k)
	for c := range gw {
		gw[c] = make([]float64, nf)
	}
	gb := make([]float64, k)
	p := make([]float64, k)

	for iter := 0; iter < m.MaxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for c := range gw {
			clear(gw[c])
		}
		clear(gb)
		for i, row := range X {
			m.scores(row, p)
			softmax(p)
			p[y[i]] -= 1
			for c := 0; c < k; c++ {
				gb[c] += p[c]
				for j, v := range row {
					gw[c][j] += p[c] * v
				}
			}
		}
		for c := 0; c < k; c++ {
			m.b[c] -= lr * gb[c] / n
			for j := range m.w[c] {
				m.w[c][j] -= lr * (gw[c][j]/n + reg*m.w[c][j])
			}
		}
	}

	for c := range m.w {
		if !finite(m.w[c]...) {
			return ErrNumerical
		}
	}
	return nil
}

func (m *LogisticRegression) scores(row, out []float64) {
	for c := range m.w {
		out[c] = dot(m.w[c], row) + m.b[c]
	}
}

func (m *LogisticRegression) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		p := make([]float64, len(m.w))
		m.scores(row, p)
		softmax(p)
		out[i] = p
	}
	return out
}
