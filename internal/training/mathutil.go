package training

import "math"

func dot(a, b []float64) float64 {
	s := 0.0
	for i, v := range a {
		s += v * b[i]
	}
	return s
}

// softmax normalizes scores in place into probabilities. -Inf entries get
// probability zero.
func softmax(scores []float64) {
	maxv := math.Inf(-1)
	for _, s := range scores {
		if s > maxv {
			maxv = s
		}
	}
	if math.IsInf(maxv, -1) {
		for i := range scores {
			scores[i] = 1 / float64(len(scores))
		}
		return
	}
	sum := 0.0
	for i, s := range scores {
		scores[i] = math.Exp(s - maxv)
		sum += scores[i]
	}
	for i := range scores {
		scores[i] /= sum
	}
}

func argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

func normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	if sum <= 0 {
		for i := range out {
			out[i] = 1 / float64(len(out))
		}
		return out
	}
	for i, v := range values {
		out[i] = v / sum
	}
	return out
}

func distinct(y []int) int {
	seen := map[int]struct{}{}
	for _, c := range y {
		seen[c] = struct{}{}
	}
	return len(seen)
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
