package training

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"github.com/rpggio/runledger/internal/domain/dataset"
)

// MinRows is the smallest dataset Prepare accepts.
const MinRows = 6

// Split holds a preprocessed dataset partitioned 70/15/15 into train,
// validation and test sets. Class labels are encoded as indexes into Classes.
type Split struct {
	Features []string
	Target   string
	Classes  []string

	XTrain, XVal, XTest [][]float64
	YTrain, YVal, YTest []int
}

// NumClasses returns the number of distinct target labels.
func (s *Split) NumClasses() int {
	return len(s.Classes)
}

// Prepare turns a parsed CSV into a scaled numeric split. The last column is
// the target. Non-numeric feature columns are label encoded, missing numeric
// values are replaced by the column mean, every feature is standardized, and
// rows are shuffled with seed before splitting.
func Prepare(table *dataset.Table, seed uint64) (*Split, error) {
	if len(table.Header) < 2 {
		return nil, fmt.Errorf("%w: need at least one feature column and a target column", ErrInsufficientData)
	}
	nf := len(table.Header) - 1

	rows := make([][]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		if len(row) != len(table.Header) {
			return nil, fmt.Errorf("%w: row has %d fields, want %d", ErrInsufficientData, len(row), len(table.Header))
		}
		if isMissing(row[nf]) {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) < MinRows {
		return nil, fmt.Errorf("%w: %d labeled rows, need at least %d", ErrInsufficientData, len(rows), MinRows)
	}

	labels := make([]string, len(rows))
	for i, row := range rows {
		labels[i] = strings.TrimSpace(row[nf])
	}
	classes, y := encodeLabels(labels)
	if len(classes) < 2 {
		return nil, fmt.Errorf("%w: target column %q has a single class", ErrInsufficientData, table.Header[nf])
	}

	X := make([][]float64, len(rows))
	for i := range X {
		X[i] = make([]float64, nf)
	}
	column := make([]string, len(rows))
	for j := 0; j < nf; j++ {
		for i, row := range rows {
			column[i] = strings.TrimSpace(row[j])
		}
		for i, v := range encodeFeature(column) {
			X[i][j] = v
		}
	}
	standardize(X)

	s := &Split{
		Features: append([]string(nil), table.Header[:nf]...),
		Target:   table.Header[nf],
		Classes:  classes,
	}
	partition(s, X, y, seed)
	return s, nil
}

func isMissing(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "na", "nan", "null", "none", "?":
		return true
	}
	return false
}

// encodeLabels assigns codes in sorted label order, numerically when every
// label is a number.
func encodeLabels(values []string) ([]string, []int) {
	classes := uniqueSorted(values)
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	codes := make([]int, len(values))
	for i, v := range values {
		codes[i] = index[v]
	}
	return classes, codes
}

func uniqueSorted(values []string) []string {
	seen := map[string]struct{}{}
	var out []string
	numeric := true
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			numeric = false
		}
	}
	if numeric {
		slices.SortFunc(out, func(a, b string) int {
			fa, _ := strconv.ParseFloat(a, 64)
			fb, _ := strconv.ParseFloat(b, 64)
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		})
	} else {
		slices.Sort(out)
	}
	return out
}

// encodeFeature parses a numeric column with mean imputation, or label
// encodes it when any present value is not a number.
func encodeFeature(column []string) []float64 {
	out := make([]float64, len(column))
	present := make([]bool, len(column))
	sum, n := 0.0, 0
	for i, v := range column {
		if isMissing(v) {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsInf(f, 0) {
			_, codes := encodeLabels(column)
			for i, c := range codes {
				out[i] = float64(c)
			}
			return out
		}
		out[i] = f
		present[i] = true
		sum += f
		n++
	}
	mean := 0.0
	if n > 0 {
		mean = sum / float64(n)
	}
	for i := range out {
		if !present[i] {
			out[i] = mean
		}
	}
	return out
}

// standardize scales each column to zero mean and unit variance. Constant
// columns are only centered.
func standardize(X [][]float64) {
	if len(X) == 0 {
		return
	}
	n := float64(len(X))
	for j := range X[0] {
		mean := 0.0
		for _, row := range X {
			mean += row[j]
		}
		mean /= n
		variance := 0.0
		for _, row := range X {
			d := row[j] - mean
			variance += d * d
		}
		std := math.Sqrt(variance / n)
		if std < 1e-12 {
			std = 1
		}
		for _, row := range X {
			row[j] = (row[j] - mean) / std
		}
	}
}

// partition shuffles rows and splits them 70/15/15. The 30% holdout is
// rounded up and divided in half, the test half rounded up.
func partition(s *Split, X [][]float64, y []int, seed uint64) {
	n := len(X)
	perm := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)).Perm(n)

	holdout := int(math.Ceil(0.3 * float64(n)))
	nTest := int(math.Ceil(float64(holdout) / 2))
	nVal := holdout - nTest
	nTrain := n - holdout

	take := func(idx []int) ([][]float64, []int) {
		xs := make([][]float64, len(idx))
		ys := make([]int, len(idx))
		for i, p := range idx {
			xs[i] = X[p]
			ys[i] = y[p]
		}
		return xs, ys
	}
	s.XTrain, s.YTrain = take(perm[:nTrain])
	s.XVal, s.YVal = take(perm[nTrain : nTrain+nVal])
	s.XTest, s.YTest = take(perm[nTrain+nVal:])
}
