package training

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
)

// MLP is a feed-forward network with a softmax output layer trained by
// minibatch Adam on cross-entropy. Each call to Epoch makes one pass over
// the data.
type MLP struct {
	Hidden       []int
	Activation   string
	LearningRate float64
	BatchSize    int
	Alpha        float64

	rng  *rand.Rand
	w    [][][]float64
	b    [][]float64
	mw   [][][]float64
	vw   [][][]float64
	mb   [][]float64
	vb   [][]float64
	step int
}

// NewMLP returns an untrained network seeded with seed.
func NewMLP(seed uint64) *MLP {
	return &MLP{
		Hidden:       []int{100},
		Activation:   "relu",
		LearningRate: 0.001,
		BatchSize:    200,
		Alpha:        1e-4,
		rng:          rand.New(rand.NewPCG(seed, 3)),
	}
}

func (m *MLP) validate() error {
	if len(m.Hidden) > maxHiddenLayers {
		return fmt.Errorf("%w: at most %d hidden layers", ErrInvalidParams, maxHiddenLayers)
	}
	for _, units := range m.Hidden {
		if units > maxHiddenUnits {
			return fmt.Errorf("%w: hidden layers hold at most %d units", ErrInvalidParams, maxHiddenUnits)
		}
	}
	switch m.Activation {
	case "relu", "tanh", "logistic", "identity":
	default:
		return fmt.Errorf("%w: unsupported activation %q", ErrInvalidParams, m.Activation)
	}
	return nil
}

func (m *MLP) init(in, out int) {
	sizes := append(append([]int{in}, m.Hidden...), out)
	layers := len(sizes) - 1
	m.w = make([][][]float64, layers)
	m.b = make([][]float64, layers)
	m.mw = make([][][]float64, layers)
	m.vw = make([][][]float64, layers)
	m.mb = make([][]float64, layers)
	m.vb = make([][]float64, layers)
	for l := 0; l < layers; l++ {
		fanIn, fanOut := sizes[l], sizes[l+1]
		factor := 6.0
		if m.Activation == "logistic" {
			factor = 2.0
		}
		bound := math.Sqrt(factor / float64(fanIn+fanOut))
		m.w[l] = matrix(fanOut, fanIn)
		m.mw[l] = matrix(fanOut, fanIn)
		m.vw[l] = matrix(fanOut, fanIn)
		for j := range m.w[l] {
			for i := range m.w[l][j] {
				m.w[l][j][i] = (2*m.rng.Float64() - 1) * bound
			}
		}
		m.b[l] = make([]float64, fanOut)
		m.mb[l] = make([]float64, fanOut)
		m.vb[l] = make([]float64, fanOut)
		for j := range m.b[l] {
			m.b[l][j] = (2*m.rng.Float64() - 1) * bound
		}
	}
}

func matrix(rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
	}
	return out
}

func (m *MLP) activate(v []float64) {
	for i, x := range v {
		switch m.Activation {
		case "relu":
			v[i] = math.Max(0, x)
		case "tanh":
			v[i] = math.Tanh(x)
		case "logistic":
			v[i] = 1 / (1 + math.Exp(-x))
		}
	}
}

// derivative is expressed in terms of the activation output a.
func (m *MLP) derivative(a float64) float64 {
	switch m.Activation {
	case "relu":
		if a > 0 {
			return 1
		}
		return 0
	case "tanh":
		return 1 - a*a
	case "logistic":
		return a * (1 - a)
	}
	return 1
}

func (m *MLP) forward(x []float64) [][]float64 {
	acts := make([][]float64, len(m.w)+1)
	acts[0] = x
	for l := range m.w {
		out := make([]float64, len(m.w[l]))
		for j, row := range m.w[l] {
			out[j] = dot(row, acts[l]) + m.b[l][j]
		}
		if l == len(m.w)-1 {
			softmax(out)
		} else {
			m.activate(out)
		}
		acts[l+1] = out
	}
	return acts
}

// Epoch runs one shuffled pass of minibatch updates.
func (m *MLP) Epoch(ctx context.Context, X [][]float64, y []int, k int) error {
	if err := m.validate(); err != nil {
		return err
	}
	if m.w == nil {
		m.init(len(X[0]), k)
	}

	batch := min(max(m.BatchSize, 1), len(X))
	order := m.rng.Perm(len(X))

	gw := make([][][]float64, len(m.w))
	gb := make([][]float64, len(m.w))
	for l := range m.w {
		gw[l] = matrix(len(m.w[l]), len(m.w[l][0]))
		gb[l] = make([]float64, len(m.b[l]))
	}

	for start := 0; start < len(order); start += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+batch, len(order))
		for l := range gw {
			for j := range gw[l] {
				clear(gw[l][j])
			}
			clear(gb[l])
		}

		for _, i := range order[start:end] {
			acts := m.forward(X[i])
			delta := append([]float64(nil), acts[len(acts)-1]...)
			delta[y[i]] -= 1
			for l := len(m.w) - 1; l >= 0; l-- {
				var prev []float64
				if l > 0 {
					prev = make([]float64, len(acts[l]))
				}
				for j, d := range delta {
					if d == 0 {
						continue
					}
					gb[l][j] += d
					row := m.w[l][j]
					for in, a := range acts[l] {
						gw[l][j][in] += d * a
						if prev != nil {
							prev[in] += row[in] * d
						}
					}
				}
				if prev != nil {
					for in := range prev {
						prev[in] *= m.derivative(acts[l][in])
					}
				}
				delta = prev
			}
		}

		m.adam(gw, gb, float64(end-start))
	}

	for l := range m.w {
		for _, row := range m.w[l] {
			if !finite(row...) {
				return ErrNumerical
			}
		}
	}
	return nil
}

func (m *MLP) adam(gw [][][]float64, gb [][]float64, n float64) {
	const beta1, beta2, eps = 0.9, 0.999, 1e-8
	m.step++
	lr := m.LearningRate * math.Sqrt(1-math.Pow(beta2, float64(m.step))) / (1 - math.Pow(beta1, float64(m.step)))

	update := func(param, mom, vel *float64, g float64) {
		*mom = beta1**mom + (1-beta1)*g
		*vel = beta2**vel + (1-beta2)*g*g
		*param -= lr * *mom / (math.Sqrt(*vel) + eps)
	}
	for l := range m.w {
		for j := range m.w[l] {
			for i := range m.w[l][j] {
				g := (gw[l][j][i] + m.Alpha*m.w[l][j][i]) / n
				update(&m.w[l][j][i], &m.mw[l][j][i], &m.vw[l][j][i], g)
			}
			update(&m.b[l][j], &m.mb[l][j], &m.vb[l][j], gb[l][j]/n)
		}
	}
}

func (m *MLP) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		acts := m.forward(row)
		out[i] = acts[len(acts)-1]
	}
	return out
}
