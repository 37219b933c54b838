package forest

import (
	"math/rand/v2"
	"sort"
)

// node is one decision node. Leaves have left == nil and carry the label.
type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node
	label     int
}

func (n *node) leaf() bool { return n.left == nil }

// tree is a single CART classifier grown to purity on a bootstrap sample.
type tree struct {
	root *node
}

func (t *tree) predict(x []float64) int {
	n := t.root
	for !n.leaf() {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.label
}

// buildTree grows a tree on the given sample indices, choosing from mtry
// random features at each split.
func buildTree(x [][]float64, y []int, idx []int, mtry int, rng *rand.Rand) *tree {
	features := len(x[0])
	order := make([]int, features)
	for i := range order {
		order[i] = i
	}
	return &tree{root: growNode(x, y, idx, order, mtry, rng)}
}

func growNode(x [][]float64, y []int, idx, order []int, mtry int, rng *rand.Rand) *node {
	if pure, label := purity(y, idx); pure {
		return &node{label: label}
	}

	// Sample mtry candidate features without replacement.
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	bestGini := 2.0
	bestFeature, bestThreshold := -1, 0.0
	for _, f := range order[:mtry] {
		threshold, gini, ok := bestSplit(x, y, idx, f)
		if ok && gini < bestGini {
			bestGini, bestFeature, bestThreshold = gini, f, threshold
		}
	}
	if bestFeature < 0 {
		// All candidate features are constant on this sample.
		return &node{label: majority(y, idx)}
	}

	var left, right []int
	for _, i := range idx {
		if x[i][bestFeature] <= bestThreshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &node{label: majority(y, idx)}
	}
	return &node{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      growNode(x, y, left, order, mtry, rng),
		right:     growNode(x, y, right, order, mtry, rng),
	}
}

// bestSplit finds the threshold on feature f minimizing weighted gini
// impurity of the two children.
func bestSplit(x [][]float64, y []int, idx []int, f int) (threshold, gini float64, ok bool) {
	vals := make([]float64, len(idx))
	for i, j := range idx {
		vals[i] = x[j][f]
	}
	sort.Float64s(vals)

	bestGini := 2.0
	bestThreshold := 0.0
	found := false
	for i := 1; i < len(vals); i++ {
		if vals[i] == vals[i-1] {
			continue
		}
		t := (vals[i] + vals[i-1]) / 2
		g := splitGini(x, y, idx, f, t)
		if g < bestGini {
			bestGini, bestThreshold, found = g, t, true
		}
	}
	return bestThreshold, bestGini, found
}

func splitGini(x [][]float64, y []int, idx []int, f int, threshold float64) float64 {
	leftCounts := map[int]int{}
	rightCounts := map[int]int{}
	nl, nr := 0, 0
	for _, i := range idx {
		if x[i][f] <= threshold {
			leftCounts[y[i]]++
			nl++
		} else {
			rightCounts[y[i]]++
			nr++
		}
	}
	n := float64(nl + nr)
	return float64(nl)/n*giniOf(leftCounts, nl) + float64(nr)/n*giniOf(rightCounts, nr)
}

func giniOf(counts map[int]int, n int) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		g -= p * p
	}
	return g
}

func purity(y []int, idx []int) (bool, int) {
	first := y[idx[0]]
	for _, i := range idx[1:] {
		if y[i] != first {
			return false, 0
		}
	}
	return true, first
}

// majority returns the most frequent label, smallest label on ties.
func majority(y []int, idx []int) int {
	counts := map[int]int{}
	for _, i := range idx {
		counts[y[i]]++
	}
	best, bestCount := 0, -1
	for label, c := range counts {
		if c > bestCount || (c == bestCount && label < best) {
			best, bestCount = label, c
		}
	}
	return best
}
