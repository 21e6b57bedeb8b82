package meter

import (
	"math"
	"sync"
	"time"
)

// PeakHolder keeps the highest level seen for a hold duration.
// It is safe for concurrent use.
type PeakHolder struct {
	mu           sync.Mutex
	held         float64
	heldAt       time.Time
	holdDuration time.Duration
}

// NewPeakHolder creates a peak holder with nothing held.
func NewPeakHolder(hold time.Duration) *PeakHolder {
	return &PeakHolder{
		held:         math.Inf(-1),
		holdDuration: hold,
	}
}

// Update records level and returns the held peak.
func (p *PeakHolder) Update(level float64, now time.Time) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if level >= p.held || now.Sub(p.heldAt) > p.holdDuration {
		p.held = level
		p.heldAt = now
	}
	return p.held
}

// Reset drops the held peak.
func (p *PeakHolder) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held = math.Inf(-1)
	p.heldAt = time.Time{}
}
