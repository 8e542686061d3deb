package anomaly

import (
	"math"
	"math/rand"
)

// euler-Mascheroni constant, used in the average unsuccessful-search depth.
const eulerGamma = 0.5772156649015329

// treeNode is one node of an isolation tree. Leaf nodes carry the size of the
// sample that reached them.
type treeNode struct {
	splitAttr   int
	splitVal    float64
	left, right *treeNode
	size        int
}

// isolationForest is an ensemble of randomized isolation trees over a small
// feature space. Scoring follows the usual convention: anomalous points have
// short average path lengths.
type isolationForest struct {
	trees  []*treeNode
	sample int
}

// fitIsolationForest builds an ensemble over the data. sampleSize caps the
// per-tree subsample; rng drives both subsampling and split selection so a
// fixed seed reproduces the model.
func fitIsolationForest(data [][]float64, trees, sampleSize int, rng *rand.Rand) *isolationForest {
	n := len(data)
	if sampleSize > n {
		sampleSize = n
	}
	heightLimit := 0
	if sampleSize > 1 {
		heightLimit = int(math.Ceil(math.Log2(float64(sampleSize))))
	}

	forest := &isolationForest{sample: sampleSize}
	sample := make([][]float64, sampleSize)
	for t := 0; t < trees; t++ {
		perm := rng.Perm(n)
		for i := 0; i < sampleSize; i++ {
			sample[i] = data[perm[i]]
		}
		forest.trees = append(forest.trees, buildTree(sample, 0, heightLimit, rng))
	}
	return forest
}

func buildTree(data [][]float64, height, limit int, rng *rand.Rand) *treeNode {
	if len(data) <= 1 || height >= limit {
		return &treeNode{size: len(data)}
	}

	// candidate attributes are those with any spread in this sample
	dims := len(data[0])
	var candidates []int
	for attr := 0; attr < dims; attr++ {
		lo, hi := attrRange(data, attr)
		if hi > lo {
			candidates = append(candidates, attr)
		}
	}
	if len(candidates) == 0 {
		return &treeNode{size: len(data)}
	}

	attr := candidates[rng.Intn(len(candidates))]
	lo, hi := attrRange(data, attr)
	split := lo + rng.Float64()*(hi-lo)

	var left, right [][]float64
	for _, x := range data {
		if x[attr] < split {
			left = append(left, x)
		} else {
			right = append(right, x)
		}
	}
	return &treeNode{
		splitAttr: attr,
		splitVal:  split,
		left:      buildTree(left, height+1, limit, rng),
		right:     buildTree(right, height+1, limit, rng),
	}
}

func attrRange(data [][]float64, attr int) (lo, hi float64) {
	lo, hi = data[0][attr], data[0][attr]
	for _, x := range data[1:] {
		if x[attr] < lo {
			lo = x[attr]
		}
		if x[attr] > hi {
			hi = x[attr]
		}
	}
	return lo, hi
}

// avgPathLength is c(n), the average depth of an unsuccessful search in a
// binary search tree of n nodes.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	return 2*(math.Log(float64(n-1))+eulerGamma) - 2*float64(n-1)/float64(n)
}

func pathLength(node *treeNode, x []float64) float64 {
	depth := 0.0
	for node.left != nil {
		if x[node.splitAttr] < node.splitVal {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return depth + avgPathLength(node.size)
}

// decisionFunction scores a point with higher values meaning more normal and
// negative values anomalous: 0.5 minus the canonical isolation anomaly score.
// The sign convention must be preserved by callers pooling scores.
func (f *isolationForest) decisionFunction(x []float64) float64 {
	c := avgPathLength(f.sample)
	if c == 0 || len(f.trees) == 0 {
		return 0
	}
	total := 0.0
	for _, tree := range f.trees {
		total += pathLength(tree, x)
	}
	mean := total / float64(len(f.trees))
	return 0.5 - math.Pow(2, -mean/c)
}
