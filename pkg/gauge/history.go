package gauge

import (
	"time"

	"github.com/itohio/gospl/pkg/meter"
)

// Point is one trace entry.
type Point struct {
	Timestamp time.Time
	Value     float64 // SPL when calibrated, dBFS otherwise
}

// History keeps the trace points that fall inside a sliding time window.
// All points share one unit; a change of calibration state starts over.
type History struct {
	window     time.Duration
	calibrated bool
	points     []Point
}

// NewHistory creates a history spanning window. A zero window keeps only the
// latest point.
func NewHistory(window time.Duration) *History {
	return &History{
		window: window,
		points: make([]Point, 0, 256),
	}
}

// Push appends the reading and drops points older than the window.
func (h *History) Push(r meter.Reading) {
	if len(h.points) > 0 && r.Calibrated != h.calibrated {
		h.points = h.points[:0]
	}
	h.calibrated = r.Calibrated
	h.points = append(h.points, Point{Timestamp: r.Timestamp, Value: r.Value()})

	cutoff := r.Timestamp.Add(-h.window)
	drop := 0
	for drop < len(h.points)-1 && h.points[drop].Timestamp.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		n := copy(h.points, h.points[drop:])
		h.points = h.points[:n]
	}
}

// Points returns the retained points, oldest first. The slice is reused by
// the next Push.
func (h *History) Points() []Point {
	return h.points
}

// Calibrated reports the unit of the retained points.
func (h *History) Calibrated() bool {
	return h.calibrated
}

// Len returns the number of retained points.
func (h *History) Len() int {
	return len(h.points)
}

// Reset drops every point.
func (h *History) Reset() {
	h.points = h.points[:0]
}

// Downsample decimates src to at most maxPoints entries.
// dst is reused when it has enough capacity.
func Downsample[T any](dst, src []T, maxPoints int) []T {
	if maxPoints <= 0 {
		return dst[:0]
	}
	if len(src) <= maxPoints {
		if cap(dst) >= len(src) {
			dst = dst[:len(src)]
		} else {
			dst = make([]T, len(src))
		}
		copy(dst, src)
		return dst
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]T, 0, maxPoints)
	}

	step := float64(len(src)) / float64(maxPoints)
	for i := range maxPoints {
		dst = append(dst, src[int(float64(i)*step)])
	}
	return dst
}
