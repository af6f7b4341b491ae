package scoring

import "sort"

// Rank orders the database indices of every query by descending similarity.
// Ties are broken by ascending original index: the sort is stable over the
// identity permutation, so equal scores keep their column order. This rule is
// part of the contract so that two runs over the same matrix always produce
// the same ranking.
func Rank(sim SimilarityMatrix) [][]int {
	ranked := make([][]int, sim.Rows)
	for q := 0; q < sim.Rows; q++ {
		ranked[q] = rankRow(sim.Row(q))
	}
	return ranked
}

func rankRow(scores []float32) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	return idx
}
