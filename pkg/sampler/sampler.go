// Package sampler acquires windows of raw microphone readings at a fixed cadence.
package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/itohio/gospl/pkg/config"
)

const (
	// DefaultBaselineSamples is the number of quick readings averaged into the DC baseline.
	DefaultBaselineSamples = 16
	// DefaultBaselineSpacing is the pause between two baseline readings.
	DefaultBaselineSpacing = 200 * time.Microsecond
)

// Source provides raw ADC readings.
type Source interface {
	ReadRaw() (uint16, error)
}

// Stream is a Source that delivers readings at its own rate through a queue.
// Flush discards the queued readings and returns how many were dropped.
// A Sampler built on a Stream flushes before every window and never paces
// its reads, so the device clock sets the sample rate.
type Stream interface {
	Source
	Flush() int
}

// Window is the accumulated result of one measurement pass.
type Window struct {
	Count      int           // number of accumulated readings
	Sum        float64       // sum of raw readings
	SumSquares float64       // sum of squared deviations from Baseline
	Baseline   float64       // DC offset estimate (ADC counts)
	Elapsed    time.Duration // actual time spent, baseline included
}

// Empty reports whether no readings were accumulated.
func (w Window) Empty() bool {
	return w.Count == 0
}

// Mean returns the average raw reading, or the baseline for an empty window.
func (w Window) Mean() float64 {
	if w.Count == 0 {
		return w.Baseline
	}
	return w.Sum / float64(w.Count)
}

// Options controls sampler pacing.
type Options struct {
	SamplePeriod    time.Duration // target interval between readings
	BaselineSamples int
	BaselineSpacing time.Duration
}

// OptionsFromConfig derives sampler options from the sampling configuration.
func OptionsFromConfig(cfg *config.SamplingConfig) Options {
	return Options{
		SamplePeriod:    cfg.SamplePeriod(),
		BaselineSamples: cfg.BaselineSamples,
		BaselineSpacing: cfg.BaselineSpacing,
	}
}

// Sampler reads a Source at a fixed period.
type Sampler struct {
	src    Source
	stream Stream
	clock  Clock
	opts   Options
}

// New creates a Sampler. A nil clock selects the system clock.
func New(src Source, clock Clock, opts Options) *Sampler {
	if clock == nil {
		clock = SystemClock{}
	}
	if opts.BaselineSamples <= 0 {
		opts.BaselineSamples = DefaultBaselineSamples
	}
	stream, _ := src.(Stream)
	if stream != nil {
		opts.SamplePeriod = 0
		opts.BaselineSpacing = 0
	}
	return &Sampler{
		src:    src,
		stream: stream,
		clock:  clock,
		opts:   opts,
	}
}

// AcquireWindow estimates the DC baseline, then accumulates squared deviations
// from it until duration has elapsed. Each reading is followed by a wait that
// fills the rest of the sample period; a reading slower than the period is
// followed by no wait at all. A Stream source is flushed first so the window
// only sees readings taken after the call.
func (s *Sampler) AcquireWindow(ctx context.Context, duration time.Duration) (Window, error) {
	if s.stream != nil {
		s.stream.Flush()
	}
	start := s.clock.Now()

	baseline, err := s.baseline(ctx)
	if err != nil {
		return Window{}, err
	}

	w := Window{Baseline: baseline}
	for s.clock.Now().Sub(start) < duration {
		if err := ctx.Err(); err != nil {
			return Window{}, err
		}

		t0 := s.clock.Now()
		raw, err := s.src.ReadRaw()
		if err != nil {
			return Window{}, fmt.Errorf("failed to read sample: %w", err)
		}

		v := float64(raw)
		d := v - baseline
		w.Sum += v
		w.SumSquares += d * d
		w.Count++

		if spent := s.clock.Now().Sub(t0); spent < s.opts.SamplePeriod {
			s.clock.Sleep(s.opts.SamplePeriod - spent)
		}
	}

	w.Elapsed = s.clock.Now().Sub(start)
	return w, nil
}

// baseline averages a few quick readings.
func (s *Sampler) baseline(ctx context.Context) (float64, error) {
	var sum float64
	for i := 0; i < s.opts.BaselineSamples; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		raw, err := s.src.ReadRaw()
		if err != nil {
			return 0, fmt.Errorf("failed to read baseline sample: %w", err)
		}
		sum += float64(raw)
		if s.opts.BaselineSpacing > 0 {
			s.clock.Sleep(s.opts.BaselineSpacing)
		}
	}
	return sum / float64(s.opts.BaselineSamples), nil
}
