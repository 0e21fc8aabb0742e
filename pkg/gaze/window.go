package gaze

import "time"

// window is a time-bounded FIFO of eye samples, oldest first.
// Not safe for concurrent use; the Processor guards it.
type window struct {
	samples   []EyeSample
	retention time.Duration
}

func newWindow(retention time.Duration) *window {
	return &window{retention: retention}
}

func (w *window) push(s EyeSample) {
	w.samples = append(w.samples, s)
}

// evict drops samples older than the retention relative to now.
func (w *window) evict(now time.Time) {
	cutoff := now.Add(-w.retention)
	i := 0
	for i < len(w.samples) && w.samples[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	// Shift in place so the backing array doesn't grow without bound.
	n := copy(w.samples, w.samples[i:])
	w.samples = w.samples[:n]
}

func (w *window) len() int {
	return len(w.samples)
}

// stats computes the inputs to the certainty policy for state.
func (w *window) stats(state WinkState, threshold float64, now time.Time) (similarity, center float64) {
	n := len(w.samples)
	if n == 0 {
		return 0, 1
	}

	matches := 0
	var ageSum time.Duration
	transitions := 0

	prev := WinkNone
	for i, s := range w.samples {
		c := ClassifyWink(s.RightOpenness, s.LeftOpenness, threshold)
		if c == state {
			matches++
		}
		if i > 0 && c != prev {
			ageSum += now.Sub(s.Timestamp)
			transitions++
		}
		prev = c
	}

	similarity = float64(matches) / float64(n)

	// With no transitions the centre defaults to the oldest edge.
	meanAge := w.retention
	if transitions > 0 {
		meanAge = ageSum / time.Duration(transitions)
	}
	center = clamp01(float64(meanAge) / float64(w.retention))

	return similarity, center
}

// ClassifyWink labels the eye with the lower openness as winking when the
// openness difference exceeds threshold.
func ClassifyWink(rightOpenness, leftOpenness, threshold float64) WinkState {
	diff := rightOpenness - leftOpenness
	if diff < 0 {
		diff = -diff
	}
	if diff <= threshold {
		return WinkNone
	}
	if rightOpenness < leftOpenness {
		return WinkRight
	}
	return WinkLeft
}
