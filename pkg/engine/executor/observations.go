package executor

import (
	"slices"

	"github.com/muninndb/muninn/pkg/engine/planner/physical"
	"github.com/muninndb/muninn/pkg/functions"
	"github.com/muninndb/muninn/pkg/functions/stats"
)

// observations accumulates per-function statistics over a single batch.
// Pipelines flush them to the statistics catalog once the batch completes,
// so estimates update per batch, never per row. Observations from a batch
// that fails mid-way are discarded with it.
type observations struct {
	perFunc map[functions.Signature]*stats.BatchObservation
}

func newObservations() *observations {
	return &observations{perFunc: make(map[functions.Signature]*stats.BatchObservation)}
}

func (o *observations) get(sig functions.Signature) *stats.BatchObservation {
	obs, ok := o.perFunc[sig]
	if !ok {
		obs = &stats.BatchObservation{}
		o.perFunc[sig] = obs
	}
	return obs
}

// observeCall records how one call of the function was served.
func (o *observations) observeCall(sig functions.Signature, outcome callOutcome) {
	obs := o.get(sig)
	if outcome.cacheProbe {
		obs.CacheLookups++
		if !outcome.ran {
			obs.CacheHits++
		}
	}
	if outcome.ran {
		obs.Invocations++
		obs.TotalLatency += outcome.latency
	}
}

// observeTerm records the outcome of evaluating one predicate term over a set
// of rows, for every function the term contains.
func (o *observations) observeTerm(term physical.Expression, evaluated, matched int) {
	for _, sig := range callSignatures(term) {
		obs := o.get(sig)
		obs.Evaluated += evaluated
		obs.Matched += matched
	}
}

// flush reports the accumulated observations to the statistics catalog. A nil
// catalog discards them.
func (o *observations) flush(catalog *stats.Catalog) {
	if catalog == nil {
		return
	}
	for sig, obs := range o.perFunc {
		catalog.RecordBatch(sig, *obs)
	}
}

// callSignatures returns the distinct signatures of all function calls inside
// the expression.
func callSignatures(expr physical.Expression) []functions.Signature {
	var sigs []functions.Signature
	var walk func(physical.Expression)
	walk = func(expr physical.Expression) {
		switch expr := expr.(type) {
		case *physical.UnaryExpr:
			walk(expr.Left)
		case *physical.BinaryExpr:
			walk(expr.Left)
			walk(expr.Right)
		case *physical.FuncCallExpr:
			if !slices.Contains(sigs, expr.Signature) {
				sigs = append(sigs, expr.Signature)
			}
			for _, arg := range expr.Args {
				walk(arg)
			}
		}
	}
	walk(expr)
	return sigs
}
