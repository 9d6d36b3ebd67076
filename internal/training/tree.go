package training

import (
	"context"
	"math/rand/v2"
	"sort"
)

// node is a binary decision tree node. Leaves have feature -1 and carry a
// class distribution (classification) or a single value (regression).
type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node
	value     []float64
}

func (n *node) leaf(x []float64) *node {
	for n.feature >= 0 {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n
}

type treeConfig struct {
	maxDepth        int // 0 means unlimited
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int // 0 means all
	rng             *rand.Rand
}

func (cfg treeConfig) stop(depth, n int) bool {
	if cfg.maxDepth > 0 && depth >= cfg.maxDepth {
		return true
	}
	return n < max(cfg.minSamplesSplit, 2) || n < 2*max(cfg.minSamplesLeaf, 1)
}

func (cfg treeConfig) features(nf int) []int {
	if cfg.maxFeatures > 0 && cfg.maxFeatures < nf && cfg.rng != nil {
		return cfg.rng.Perm(nf)[:cfg.maxFeatures]
	}
	all := make([]int, nf)
	for i := range all {
		all[i] = i
	}
	return all
}

// sweep visits every threshold between distinct consecutive values of
// feature f over idx, sorted in place. visit receives the sorted position of
// the last row going left.
func sweep(X [][]float64, idx []int, f, minLeaf int, visit func(pos int, threshold float64)) {
	sort.Slice(idx, func(a, b int) bool { return X[idx[a]][f] < X[idx[b]][f] })
	minLeaf = max(minLeaf, 1)
	for pos := 0; pos < len(idx)-1; pos++ {
		lo, hi := X[idx[pos]][f], X[idx[pos+1]][f]
		if lo == hi {
			continue
		}
		if pos+1 < minLeaf || len(idx)-pos-1 < minLeaf {
			continue
		}
		visit(pos, (lo+hi)/2)
	}
}

func split(X [][]float64, idx []int, f int, threshold float64) (left, right []int) {
	for _, i := range idx {
		if X[i][f] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

// growClassTree builds a weighted Gini tree over the rows in idx.
func growClassTree(X [][]float64, y []int, w []float64, k int, idx []int, depth int, cfg treeConfig) *node {
	dist := make([]float64, k)
	total := 0.0
	for _, i := range idx {
		dist[y[i]] += w[i]
		total += w[i]
	}
	n := &node{feature: -1, value: normalize(dist)}

	impurity := gini(dist, total)
	if cfg.stop(depth, len(idx)) || impurity <= 1e-12 || total <= 0 {
		return n
	}

	bestGain, bestFeature, bestThreshold := 1e-12, -1, 0.0
	work := append([]int(nil), idx...)
	left := make([]float64, k)
	for _, f := range cfg.features(len(X[0])) {
		clear(left)
		lw, cursor := 0.0, 0
		sweep(X, work, f, cfg.minSamplesLeaf, func(pos int, threshold float64) {
			for ; cursor <= pos; cursor++ {
				i := work[cursor]
				left[y[i]] += w[i]
				lw += w[i]
			}
			rw := total - lw
			if lw <= 0 || rw <= 0 {
				return
			}
			sl, sr := 0.0, 0.0
			for c := 0; c < k; c++ {
				sl += left[c] * left[c]
				r := dist[c] - left[c]
				sr += r * r
			}
			gl := 1 - sl/(lw*lw)
			gr := 1 - sr/(rw*rw)
			gain := impurity - (lw/total)*gl - (rw/total)*gr
			if gain > bestGain {
				bestGain, bestFeature, bestThreshold = gain, f, threshold
			}
		})
	}
	if bestFeature < 0 {
		return n
	}

	l, r := split(X, idx, bestFeature, bestThreshold)
	n.feature = bestFeature
	n.threshold = bestThreshold
	n.left = growClassTree(X, y, w, k, l, depth+1, cfg)
	n.right = growClassTree(X, y, w, k, r, depth+1, cfg)
	return n
}

func gini(dist []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	s := 0.0
	for _, v := range dist {
		s += v * v
	}
	return 1 - s/(total*total)
}

// growRegTree builds a squared-error regression tree on targets r. Leaf
// values come from leafValue so boosting can apply its own update rule.
func growRegTree(X [][]float64, r []float64, idx []int, depth int, cfg treeConfig, leafValue func([]int) float64) *node {
	sum, sumsq := 0.0, 0.0
	for _, i := range idx {
		sum += r[i]
		sumsq += r[i] * r[i]
	}
	cnt := float64(len(idx))
	n := &node{feature: -1, value: []float64{leafValue(idx)}}

	parent := sumsq - sum*sum/cnt
	if cfg.stop(depth, len(idx)) || parent <= 1e-12 {
		return n
	}

	bestGain, bestFeature, bestThreshold := 1e-12, -1, 0.0
	work := append([]int(nil), idx...)
	for _, f := range cfg.features(len(X[0])) {
		ls, lsq, cursor := 0.0, 0.0, 0
		sweep(X, work, f, cfg.minSamplesLeaf, func(pos int, threshold float64) {
			for ; cursor <= pos; cursor++ {
				v := r[work[cursor]]
				ls += v
				lsq += v * v
			}
			nl := float64(pos + 1)
			nr := cnt - nl
			rs, rsq := sum-ls, sumsq-lsq
			sse := (lsq - ls*ls/nl) + (rsq - rs*rs/nr)
			if gain := parent - sse; gain > bestGain {
				bestGain, bestFeature, bestThreshold = gain, f, threshold
			}
		})
	}
	if bestFeature < 0 {
		return n
	}

	l, rt := split(X, idx, bestFeature, bestThreshold)
	n.feature = bestFeature
	n.threshold = bestThreshold
	n.left = growRegTree(X, r, l, depth+1, cfg, leafValue)
	n.right = growRegTree(X, r, rt, depth+1, cfg, leafValue)
	return n
}

// DecisionTree is a CART classifier using Gini impurity.
type DecisionTree struct {
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int

	root *node
}

func (m *DecisionTree) Fit(ctx context.Context, X [][]float64, y []int, k int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w := make([]float64, len(X))
	idx := make([]int, len(X))
	for i := range w {
		w[i] = 1
		idx[i] = i
	}
	m.root = growClassTree(X, y, w, k, idx, 0, treeConfig{
		maxDepth:        m.MaxDepth,
		minSamplesSplit: m.MinSamplesSplit,
		minSamplesLeaf:  m.MinSamplesLeaf,
	})
	return nil
}

func (m *DecisionTree) PredictProba(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = append([]float64(nil), m.root.leaf(row).value...)
	}
	return out
}
