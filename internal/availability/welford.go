package availability

import "math"

// welford holds running statistics using Welford's online algorithm, so issue
// durations can be summarised in one pass without keeping every value.
type welford struct {
	count int
	mean  float64
	m2    float64 // sum of squared differences from the mean
}

// update adds an observation.
// Reference: https://en.wikipedia.org/wiki/Algorithms_for_calculating_variance#Welford's_online_algorithm
func (w *welford) update(v float64) {
	w.count++
	delta := v - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (v - w.mean)
}

// stdDev returns the population standard deviation, 0 below two observations
func (w *welford) stdDev() float64 {
	if w.count < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.count))
}
