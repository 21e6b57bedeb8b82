// Package session assembles one measurement chain: microphone source,
// sampler, meter, calibration and the command engine.
package session

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/itohio/gospl/pkg/calib"
	"github.com/itohio/gospl/pkg/config"
	"github.com/itohio/gospl/pkg/console"
	"github.com/itohio/gospl/pkg/engine"
	"github.com/itohio/gospl/pkg/meter"
	"github.com/itohio/gospl/pkg/mic"
	"github.com/itohio/gospl/pkg/sampler"
)

// Session owns a connected device and everything that reads from it.
type Session struct {
	Device mic.Device
	Store  *calib.FileStore
	State  *calib.State
	Meter  *meter.Meter
	Interp *console.Interpreter

	engine *engine.Engine
}

// Open connects the source selected in cfg and builds the chain. Operator
// text goes to out. A missing source is returned as an error; there is no
// retry.
func Open(cfg *config.Config, out io.Writer, opts ...console.Option) (*Session, error) {
	dev, err := mic.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	if err := dev.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s source: %w", cfg.Source, err)
	}
	return newSession(cfg, dev, sampler.SystemClock{}, out, opts...), nil
}

func newSession(cfg *config.Config, dev mic.Device, clock sampler.Clock, out io.Writer, opts ...console.Option) *Session {
	smp := sampler.New(dev, clock, sampler.OptionsFromConfig(&cfg.Sampling))

	store := calib.NewFileStore(cfg.Calibration.Path, cfg.Calibration.Address)
	rec, err := store.Load()
	if err != nil {
		log.Printf("Failed to load calibration from %s: %v", store.Path(), err)
	}
	state := calib.NewState(rec)

	m := meter.New(cfg, smp, state)

	opts = append([]console.Option{console.WithTimeout(cfg.Calibration.ReferenceTimeout)}, opts...)
	interp := console.New(out, m, store, state, opts...)

	return &Session{
		Device: dev,
		Store:  store,
		State:  state,
		Meter:  m,
		Interp: interp,
		engine: engine.New(m, interp, cfg.Sampling.CycleDelay),
	}
}

// Run greets the operator and loops until ctx is canceled or a measurement
// fails.
func (s *Session) Run(ctx context.Context, lines <-chan string) error {
	s.Interp.Greet()
	return s.engine.Run(ctx, lines)
}

// Close stops update callbacks and disconnects the device. Run must have
// returned.
func (s *Session) Close() error {
	s.Meter.Close()
	if err := s.Device.Close(); err != nil {
		return fmt.Errorf("failed to close source: %w", err)
	}
	return nil
}
