package training

import (
	"context"
	"math"
)

// NaiveBayes is a Gaussian naive Bayes classifier.
type NaiveBayes struct {
	VarSmoothing float64

	logPrior []float64
	mean     [][]float64
	variance [][]float64
}

func (m *NaiveBayes) Fit(ctx context.Context, X [][]float64, y []int, k int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	nf := len(X[0])
	counts := make([]float64, k)
	m.mean = make([][]float64, k)
	m.variance = make([][]float64, k)
	for c := 0; c < k; c++ {
		m.mean[c] = make([]float64, nf)
		m.variance[c] = make([]float64, nf)
	}

	for i, row := range X {
		counts[y[i]]++
		for j, v := range row {
			m.mean[y[i]][j] += v
		}
	}
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			continue
		}
		for j := range m.mean[c] {
			m.mean[c][j] /= counts[c]
		}
	}
	for i, row := range X {
		for j, v := range row {
			d := v - m.mean[y[i]][j]
			m.variance[y[i]][j] += d * d
		}
	}

	// Smoothing is relative to the largest feature variance of the whole set.
	maxVar := 0.0
	for j := 0; j < nf; j++ {
		mean := 0.0
		for _, row := range X {
			mean += row[j]
		}
		mean /= float64(len(X))
		v := 0.0
		for _, row := range X {
			d := row[j] - mean
			v += d * d
		}
		maxVar = math.Max(maxVar, v/float64(len(X)))
	}
	eps := m.VarSmoothing * maxVar
	if eps <= 0 {
		eps = 1e-12
	}

	m.logPrior = make([]float64, k)
	for c := 0; c < k; c++ {
		if counts[c] == 0 {
			m.logPrior[c] = math.Inf(-1)
			continue
		}
		m.logPrior[c] = math.Log(counts[c] / float64(len(X)))
		for j := range m.variance[c] {
			m.variance[c][j] = m.variance[c][j]/counts[c] + eps
		}
	}
	return nil
}

func (m *NaiveBayes) PredictProba(X [][]float64) [][]float64 {
	k := len(m.logPrior)
	out := make([][]float64, len(X))
	for i, row := range X {
		scores := make([]float64, k)
		for c := 0; c < k; c++ {
			if math.IsInf(m.logPrior[c], -1) {
				scores[c] = math.Inf(-1)
				continue
			}
			s := m.logPrior[c]
			for j, v := range row {
				d := v - m.mean[c][j]
				s -= 0.5*math.Log(2*math.Pi*m.variance[c][j]) + d*d/(2*m.variance[c][j])
			}
			scores[c] = s
		}
		softmax(scores)
		out[i] = scores
	}
	return out
}
