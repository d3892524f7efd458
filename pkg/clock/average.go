package clock

// MovingAverage is a fixed window average over the most recent samples.
//
// Each update may blend the new sample with the current mean before it enters
// the window, which lets the same structure serve both as a plain window
// (ratio 1) and as a smoothed one (ratio < 1).
type MovingAverage struct {
	values []float64
	index  int
	used   int
	mean   float64
}

// NewMovingAverage creates an average over a window of size slots.
// A size below one is treated as one.
func NewMovingAverage(size int) *MovingAverage {
	if size < 1 {
		size = 1
	}
	return &MovingAverage{values: make([]float64, size)}
}

// Get returns the current mean, or 0 before the first update.
func (a *MovingAverage) Get() float64 {
	return a.mean
}

// Len returns how many slots hold a sample.
func (a *MovingAverage) Len() int {
	return a.used
}

// Cap returns the window size.
func (a *MovingAverage) Cap() int {
	return len(a.values)
}

// Update stores mean*(1-ratio) + value*ratio in the next slot and recomputes
// the mean over all filled slots.
func (a *MovingAverage) Update(value, ratio float64) {
	a.values[a.index] = a.mean*(1-ratio) + value*ratio
	a.index = (a.index + 1) % len(a.values)
	if a.used < len(a.values) {
		a.used++
	}

	var sum float64
	for _, v := range a.values[:a.used] {
		sum += v
	}
	a.mean = sum / float64(a.used)
}
