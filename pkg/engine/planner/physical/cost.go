package physical

import (
	"math"
	"slices"

	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/functions/stats"
)

const (
	// minSelectivity bounds selectivity away from zero when it is used as a
	// divisor, so a term observed to match nothing cannot produce an
	// infinite cost.
	minSelectivity = 1e-6

	// columnTermCost is the per-row cost in milliseconds attributed to
	// terms that invoke no functions. Column comparisons are orders of
	// magnitude cheaper than any function invocation, so the constant only
	// needs to be small compared to function latencies.
	columnTermCost = 1e-4

	// maxExhaustiveTerms bounds the number of function terms for which all
	// orderings are enumerated. Larger conjunctions fall back to heuristic
	// orderings.
	maxExhaustiveTerms = 5
)

// costModel ranks conjunction terms using function statistics from an
// immutable snapshot. All estimates come from the snapshot, so ranking the
// same terms against the same snapshot always yields the same order.
type costModel struct {
	snapshot *stats.Snapshot
}

// termStats describes a single conjunction term to the plan selector.
type termStats struct {
	// cost is the estimated per-row evaluation cost in milliseconds,
	// discounted by the expected cache hit rate and amplified by low
	// selectivity.
	cost float64
	// selectivity is the expected fraction of rows that satisfy the term.
	selectivity float64
	// pure marks terms that invoke no functions.
	pure bool
}

// analyze computes the ranking statistics of a single term. Terms without
// function calls get a fixed near-zero cost. For function terms, the cost is
// the summed latency of all calls, each discounted by its expected cache hit
// rate, divided by the term's selectivity so that terms which filter more
// rows rank earlier.
func (m *costModel) analyze(term Expression) termStats {
	calls := funcCalls(term)
	if len(calls) == 0 {
		return termStats{
			cost:        columnTermCost,
			selectivity: m.snapshot.Defaults().Selectivity,
			pure:        true,
		}
	}

	var (
		latency     float64
		selectivity = 1.0
		seen        = make(map[functions.Signature]struct{}, len(calls))
	)
	for _, call := range calls {
		est := m.snapshot.Estimate(call.Signature)
		latency += est.Latency.Seconds() * 1000 * (1 - est.CacheHitRate)

		// Selectivity multiplies once per distinct signature; repeated
		// calls to the same function do not filter twice.
		if _, ok := seen[call.Signature]; ok {
			continue
		}
		seen[call.Signature] = struct{}{}
		selectivity *= est.Selectivity
	}

	return termStats{
		cost:        latency / math.Max(selectivity, minSelectivity),
		selectivity: selectivity,
	}
}

// A candidate is one ordering of a conjunction's terms together with its
// aggregate expected cost.
type candidate struct {
	order []int
	cost  float64
}

// aggregateCost computes the expected per-row cost of evaluating terms in
// the given order. Each term's cost is discounted by the probability that
// every preceding term passed, since a short-circuited row never reaches it.
func aggregateCost(terms []termStats, order []int) float64 {
	var (
		cost     float64
		survival = 1.0
	)
	for _, idx := range order {
		cost += terms[idx].cost * survival
		survival *= terms[idx].selectivity
	}
	return cost
}

// bestOrder returns the ordering of terms with the lowest aggregate cost
// among the generated candidates. Every candidate keeps the terms that
// invoke no functions first, in source order, so near-free column checks run
// ahead of function invocations regardless of estimates. Ties keep the
// earliest generated candidate, making the result deterministic for
// identical terms and statistics.
func (m *costModel) bestOrder(terms []Expression) []int {
	analyzed := make([]termStats, len(terms))
	for i, term := range terms {
		analyzed[i] = m.analyze(term)
	}

	var pures, impures []int
	for i := range analyzed {
		if analyzed[i].pure {
			pures = append(pures, i)
		} else {
			impures = append(impures, i)
		}
	}

	best := candidate{cost: math.Inf(1)}
	for _, funcOrder := range functionOrders(analyzed, impures) {
		order := make([]int, 0, len(terms))
		order = append(order, pures...)
		order = append(order, funcOrder...)

		cost := aggregateCost(analyzed, order)
		if cost < best.cost {
			best = candidate{order: order, cost: cost}
		}
	}
	return best.order
}

// functionOrders generates the orderings of the function terms to consider.
// Small conjunctions are enumerated exhaustively in lexicographic order, so
// the source order is generated first and wins ties. Larger conjunctions
// fall back to the source order and a stable sort by ascending cost.
func functionOrders(terms []termStats, impures []int) [][]int {
	if len(impures) <= maxExhaustiveTerms {
		return permutations(impures)
	}

	ranked := slices.Clone(impures)
	slices.SortStableFunc(ranked, func(a, b int) int {
		switch {
		case terms[a].cost < terms[b].cost:
			return -1
		case terms[a].cost > terms[b].cost:
			return 1
		default:
			return 0
		}
	})
	return [][]int{impures, ranked}
}

// permutations returns all permutations of items in lexicographic order.
// items must be sorted ascending.
func permutations(items []int) [][]int {
	var result [][]int

	var generate func(prefix, remaining []int)
	generate = func(prefix, remaining []int) {
		if len(remaining) == 0 {
			result = append(result, slices.Clone(prefix))
			return
		}
		for i := range remaining {
			next := make([]int, 0, len(remaining)-1)
			next = append(next, remaining[:i]...)
			next = append(next, remaining[i+1:]...)
			generate(append(prefix, remaining[i]), next)
		}
	}
	generate(make([]int, 0, len(items)), items)

	return result
}
