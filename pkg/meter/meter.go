// Package meter turns sampled windows into calibrated sound level readings.
package meter

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/itohio/gospl/pkg/calib"
	"github.com/itohio/gospl/pkg/config"
	"github.com/itohio/gospl/pkg/sampler"
)

// Acquirer produces measurement windows.
type Acquirer interface {
	AcquireWindow(ctx context.Context, duration time.Duration) (sampler.Window, error)
}

var _ Acquirer = (*sampler.Sampler)(nil)

// Reading is the result of one monitoring cycle.
type Reading struct {
	Timestamp  time.Time
	Samples    int     // readings in the window; 0 means no signal
	VRMS       float64 // volts
	DBFS       float64
	SPL        float64 // only meaningful when Calibrated
	Calibrated bool
	Fraction   float64 // bar fill in [0,1]
	PeakDBFS   float64
	PeakSPL    float64 // only meaningful when Calibrated
	Loudness   Loudness
}

// HasSignal reports whether the window contained any readings.
func (r Reading) HasSignal() bool {
	return r.Samples > 0
}

// Value returns the SPL when calibrated, otherwise the dBFS level.
func (r Reading) Value() float64 {
	if r.Calibrated {
		return r.SPL
	}
	return r.DBFS
}

// Reference is the averaged result of the calibration measurement passes.
type Reference struct {
	Passes []float64 // per-pass RMS voltage
	VRMS   float64   // mean of Passes
	DBFS   float64   // level of VRMS
}

// ProgressFunc is called after each calibration pass.
type ProgressFunc func(pass int, vrms float64)

// Meter runs monitoring cycles and calibration measurements against one Acquirer.
type Meter struct {
	acq   Acquirer
	state *calib.State
	now   func() time.Time

	vref       float64
	fullScale  float64
	window     time.Duration
	passes     int
	passWindow time.Duration
	display    config.DisplayConfig

	peakDBFS *PeakHolder
	peakSPL  *PeakHolder

	mu       sync.RWMutex
	last     Reading
	lastCal  calib.Record
	shutdown bool

	callbacks []func(Reading)
	cbMu      sync.RWMutex
}

// New creates a Meter reading the calibration from state.
func New(cfg *config.Config, acq Acquirer, state *calib.State) *Meter {
	return &Meter{
		acq:        acq,
		state:      state,
		now:        time.Now,
		vref:       cfg.ADC.VRef,
		fullScale:  cfg.ADC.FullScale(),
		window:     cfg.Sampling.Window,
		passes:     cfg.Calibration.Passes,
		passWindow: cfg.Calibration.PassWindow,
		display:    cfg.Display,
		peakDBFS:   NewPeakHolder(cfg.Display.PeakHold),
		peakSPL:    NewPeakHolder(cfg.Display.PeakHold),
		callbacks:  make([]func(Reading), 0),
	}
}

// Cycle acquires one monitoring window and maps it to a Reading.
// Registered callbacks receive the reading unless the meter is closed.
func (m *Meter) Cycle(ctx context.Context) (Reading, error) {
	w, err := m.acq.AcquireWindow(ctx, m.window)
	if err != nil {
		return Reading{}, fmt.Errorf("failed to acquire window: %w", err)
	}

	r := m.reading(w, m.state.Snapshot())

	m.mu.Lock()
	m.last = r
	shouldNotify := !m.shutdown
	m.mu.Unlock()

	if shouldNotify {
		m.notifyCallbacks(r)
	}
	return r, nil
}

// reading maps a window and a calibration snapshot to a Reading.
func (m *Meter) reading(w sampler.Window, rec calib.Record) Reading {
	now := m.now()
	vrms := ComputeRMS(w, m.vref, m.fullScale)
	dbfs := ComputeDBFS(vrms, m.vref)
	spl, calibrated := EstimateSPL(dbfs, rec)

	m.mu.Lock()
	if rec != m.lastCal {
		// held SPL peaks belong to the previous offset
		m.peakSPL.Reset()
		m.lastCal = rec
	}
	m.mu.Unlock()

	r := Reading{
		Timestamp:  now,
		Samples:    w.Count,
		VRMS:       vrms,
		DBFS:       dbfs,
		SPL:        spl,
		Calibrated: calibrated,
		PeakDBFS:   m.peakDBFS.Update(dbfs, now),
		Loudness:   Classify(spl, calibrated, m.display.LoudThreshold),
	}
	if calibrated {
		r.PeakSPL = m.peakSPL.Update(spl, now)
		r.Fraction = Normalize(spl, m.display.MinSPL, m.display.MaxSPL)
	} else {
		r.Fraction = Normalize(dbfs, m.display.MinDBFS, m.display.MaxDBFS)
	}
	return r
}

// MeasureReference runs the calibration passes and averages their RMS voltages.
// progress may be nil.
func (m *Meter) MeasureReference(ctx context.Context, progress ProgressFunc) (Reference, error) {
	passes := max(1, m.passes)
	ref := Reference{Passes: make([]float64, 0, passes)}

	var acc float64
	for i := 0; i < passes; i++ {
		w, err := m.acq.AcquireWindow(ctx, m.passWindow)
		if err != nil {
			return Reference{}, fmt.Errorf("failed to acquire calibration pass %d: %w", i+1, err)
		}
		vrms := ComputeRMS(w, m.vref, m.fullScale)
		ref.Passes = append(ref.Passes, vrms)
		acc += vrms
		if progress != nil {
			progress(i+1, vrms)
		}
	}

	ref.VRMS = math.Max(acc/float64(passes), Epsilon)
	ref.DBFS = ComputeDBFS(ref.VRMS, m.vref)
	return ref, nil
}

// Last returns the most recent reading.
func (m *Meter) Last() Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// OnUpdate registers a callback invoked after every monitoring cycle.
// The callback runs on the measuring goroutine and should return quickly.
func (m *Meter) OnUpdate(callback func(Reading)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// Close stops callback delivery. Cycle keeps working.
func (m *Meter) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = true
}

// ResetShutdown re-enables callback delivery after Close.
func (m *Meter) ResetShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = false
}

// notifyCallbacks invokes all registered callbacks without holding locks.
func (m *Meter) notifyCallbacks(r Reading) {
	m.cbMu.RLock()
	callbacks := make([]func(Reading), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(r)
		}
	}
}
