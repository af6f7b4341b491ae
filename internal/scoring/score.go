package scoring

import (
	"fmt"

	apperrors "github.com/irbench/ir-bench/internal/pkg/errors"
)

// Score evaluates one view of a benchmark: it ranks every query's similarity
// row, walks the ranking with junk items skipped, and aggregates per-query
// Average Precision into a mean. ks lists the Precision-at-k cut-offs to
// report; it may be empty.
//
// All inputs are validated before any ranking work happens. A query with no
// positive items scores AP = 0 and still counts in the mAP denominator.
func Score(sim SimilarityMatrix, relevance []QueryRelevance, ks []int) (AggregateResult, error) {
	if err := validate(sim, relevance, ks); err != nil {
		return AggregateResult{}, err
	}

	result := AggregateResult{
		Queries:    make([]APResult, 0, len(relevance)),
		NumQueries: len(relevance),
	}
	if len(ks) > 0 {
		result.MeanPrecisionAt = make(map[int]float64, len(ks))
	}

	for q, rel := range relevance {
		ranked := rankRow(sim.Row(q))
		positive, junk := labelSets(rel)

		ap := averagePrecision(ranked, positive, junk)
		qr := APResult{Name: queryName(rel.Name, q), AP: ap}
		if len(ks) > 0 {
			qr.PrecisionAt = precisionAtKs(ranked, positive, junk, ks)
			for _, k := range ks {
				result.MeanPrecisionAt[k] += qr.PrecisionAt[k]
			}
		}

		result.MAP += ap
		result.Queries = append(result.Queries, qr)
	}

	result.MAP /= float64(len(relevance))
	for _, k := range ks {
		result.MeanPrecisionAt[k] /= float64(len(relevance))
	}
	return result, nil
}

// Tiered runs the three-view protocol: raw easy/hard/junk labels are
// recombined into Easy, Medium and Hard views and each view is scored
// independently over the same similarity matrix.
func Tiered(sim SimilarityMatrix, gnd []TieredRelevance, ks []int) (TieredResult, error) {
	easy := make([]QueryRelevance, len(gnd))
	medium := make([]QueryRelevance, len(gnd))
	hard := make([]QueryRelevance, len(gnd))
	for i, g := range gnd {
		easy[i], medium[i], hard[i] = Views(g)
	}

	var out TieredResult
	var err error
	if out.Easy, err = Score(sim, easy, ks); err != nil {
		return TieredResult{}, err
	}
	if out.Medium, err = Score(sim, medium, ks); err != nil {
		return TieredResult{}, err
	}
	if out.Hard, err = Score(sim, hard, ks); err != nil {
		return TieredResult{}, err
	}
	return out, nil
}

// Views recombines one query's raw tier labels into the three evaluation
// views. Easy treats hard items as junk, Hard treats easy items as junk, and
// Medium accepts both.
func Views(g TieredRelevance) (easy, medium, hard QueryRelevance) {
	easy = QueryRelevance{Name: g.Name, Positive: g.Easy, Junk: union(g.Junk, g.Hard)}
	medium = QueryRelevance{Name: g.Name, Positive: union(g.Easy, g.Hard), Junk: g.Junk}
	hard = QueryRelevance{Name: g.Name, Positive: g.Hard, Junk: union(g.Junk, g.Easy)}
	return easy, medium, hard
}

func union(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func validate(sim SimilarityMatrix, relevance []QueryRelevance, ks []int) error {
	if sim.Rows == 0 || len(relevance) == 0 {
		return apperrors.EmptyQuerySetError()
	}
	if sim.Rows != len(relevance) {
		return apperrors.ShapeMismatchError(fmt.Sprintf(
			"similarity has %d rows but %d relevance entries were supplied", sim.Rows, len(relevance)))
	}
	if len(sim.Data) != sim.Rows*sim.Cols {
		return apperrors.ShapeMismatchError(fmt.Sprintf(
			"similarity buffer has %d entries, want %d for %dx%d",
			len(sim.Data), sim.Rows*sim.Cols, sim.Rows, sim.Cols))
	}
	for i, k := range ks {
		if k <= 0 {
			return apperrors.ValidationError(fmt.Sprintf("cut-off %d is not positive", k))
		}
		if i > 0 && k <= ks[i-1] {
			return apperrors.ValidationError(fmt.Sprintf(
				"cut-offs must be strictly increasing, got %d after %d", k, ks[i-1]))
		}
	}
	for q, rel := range relevance {
		if idx, ok := outOfRange(rel.Positive, sim.Cols); ok {
			return apperrors.InvalidIndexError(fmt.Sprintf(
				"query %s: positive index %d outside [0, %d)", queryName(rel.Name, q), idx, sim.Cols))
		}
		if idx, ok := outOfRange(rel.Junk, sim.Cols); ok {
			return apperrors.InvalidIndexError(fmt.Sprintf(
				"query %s: junk index %d outside [0, %d)", queryName(rel.Name, q), idx, sim.Cols))
		}
	}
	return nil
}

func outOfRange(indices []int, cols int) (int, bool) {
	for _, idx := range indices {
		if idx < 0 || idx >= cols {
			return idx, true
		}
	}
	return 0, false
}

func labelSets(rel QueryRelevance) (positive, junk map[int]struct{}) {
	positive = make(map[int]struct{}, len(rel.Positive))
	junk = make(map[int]struct{}, len(rel.Junk))
	for _, idx := range rel.Junk {
		junk[idx] = struct{}{}
	}
	for _, idx := range rel.Positive {
		if _, isJunk := junk[idx]; isJunk {
			continue // junk wins when a caller labels an index both ways
		}
		positive[idx] = struct{}{}
	}
	return positive, junk
}

// averagePrecision walks the ranked list, skipping junk items, and averages
// the precision observed at each positive item's rank over the number of
// positives.
func averagePrecision(ranked []int, positive, junk map[int]struct{}) float64 {
	if len(positive) == 0 {
		return 0
	}

	var (
		hits    int
		scanned int
		sum     float64
	)
	for _, idx := range ranked {
		if _, isJunk := junk[idx]; isJunk {
			continue
		}
		scanned++
		if _, isPositive := positive[idx]; isPositive {
			hits++
			sum += float64(hits) / float64(scanned)
		}
	}
	return sum / float64(len(positive))
}

// precisionAtKs reports, for each cut-off k, the fraction of the first k
// non-junk ranked items that are positive. When fewer than k non-junk items
// exist the denominator caps at the non-junk total.
func precisionAtKs(ranked []int, positive, junk map[int]struct{}, ks []int) map[int]float64 {
	hitsAt := make(map[int]int, len(ks))
	var hits, scanned int
	ki := 0
	for _, idx := range ranked {
		if _, isJunk := junk[idx]; isJunk {
			continue
		}
		scanned++
		if _, isPositive := positive[idx]; isPositive {
			hits++
		}
		if ki < len(ks) && scanned == ks[ki] {
			hitsAt[ks[ki]] = hits
			ki++
		}
	}

	out := make(map[int]float64, len(ks))
	for _, k := range ks {
		h, reached := hitsAt[k]
		if !reached {
			h = hits
		}
		den := k
		if scanned < k {
			den = scanned
		}
		if den == 0 {
			out[k] = 0
			continue
		}
		out[k] = float64(h) / float64(den)
	}
	return out
}

func queryName(name string, q int) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("q%d", q)
}
