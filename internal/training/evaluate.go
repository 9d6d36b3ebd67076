package training

import "math"

// Predictor yields per-class probabilities for each row of X.
type Predictor interface {
	PredictProba(X [][]float64) [][]float64
}

// Scores are classification metrics over one labeled set. Precision, Recall
// and F1 are support-weighted averages; classes never predicted count as 0.
type Scores struct {
	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
	LogLoss   float64
}

// Predict returns the most probable class per row.
func Predict(p Predictor, X [][]float64) []int {
	proba := p.PredictProba(X)
	out := make([]int, len(proba))
	for i, row := range proba {
		out[i] = argmax(row)
	}
	return out
}

// Evaluate scores p against labels y drawn from k classes.
func Evaluate(p Predictor, X [][]float64, y []int, k int) Scores {
	if len(y) == 0 {
		return Scores{}
	}
	proba := p.PredictProba(X)
	pred := make([]int, len(proba))
	for i, row := range proba {
		pred[i] = argmax(row)
	}

	s := classificationScores(y, pred, k)
	s.LogLoss = logLoss(y, proba)
	return s
}

func classificationScores(y, pred []int, k int) Scores {
	tp := make([]float64, k)
	predicted := make([]float64, k)
	support := make([]float64, k)
	correct := 0
	for i, truth := range y {
		support[truth]++
		predicted[pred[i]]++
		if pred[i] == truth {
			tp[truth]++
			correct++
		}
	}

	n := float64(len(y))
	s := Scores{Accuracy: float64(correct) / n}
	for c := 0; c < k; c++ {
		if support[c] == 0 {
			continue
		}
		precision := 0.0
		if predicted[c] > 0 {
			precision = tp[c] / predicted[c]
		}
		recall := tp[c] / support[c]
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		w := support[c] / n
		s.Precision += w * precision
		s.Recall += w * recall
		s.F1 += w * f1
	}
	return s
}

const probEps = 1e-15

func logLoss(y []int, proba [][]float64) float64 {
	total := 0.0
	for i, truth := range y {
		row := proba[i]
		sum := 0.0
		for _, p := range row {
			sum += p
		}
		p := 0.0
		if sum > 0 {
			p = row[truth] / sum
		}
		p = math.Min(math.Max(p, probEps), 1-probEps)
		total -= math.Log(p)
	}
	return total / float64(len(y))
}
