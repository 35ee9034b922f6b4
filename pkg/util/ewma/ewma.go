package ewma

// Average is an exponentially weighted moving average over a stream of
// observations. Each new observation carries a fixed weight, so the influence
// of an old observation decays with the number of observations made after it
// rather than with wall-clock time.
type Average struct {
	weight float64

	initialized bool
	value       float64
	count       uint64
}

// New returns an Average that weighs each new observation by weight. weight
// must be in the range (0, 1]; larger values make the average react faster to
// new observations.
func New(weight float64) *Average {
	return &Average{weight: weight}
}

// Observe updates the average with a new value. The first observation
// initializes the average to the observed value.
func (a *Average) Observe(value float64) {
	a.count++

	if !a.initialized {
		a.initialized = true
		a.value = value
		return
	}

	// EWMA is calculated using the formula:
	//   ewma_new = (1 - weight) * ewma_old + weight * value
	a.value = (1-a.weight)*a.value + a.weight*value
}

// Value returns the current EWMA value.
func (a *Average) Value() float64 { return a.value }

// Count returns the number of observations made so far.
func (a *Average) Count() uint64 { return a.count }
