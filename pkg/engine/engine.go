// Package engine runs the monitoring loop and the command interpreter on one goroutine.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/itohio/gospl/pkg/console"
	"github.com/itohio/gospl/pkg/meter"
)

// Monitor runs one monitoring cycle.
type Monitor interface {
	Cycle(ctx context.Context) (meter.Reading, error)
}

var _ Monitor = (*meter.Meter)(nil)

// Engine alternates monitoring cycles with command handling. A command,
// including any wait for a calibration reference, completes before the next
// cycle starts.
type Engine struct {
	monitor    Monitor
	interp     *console.Interpreter
	cycleDelay time.Duration
}

// New creates an Engine pausing cycleDelay between monitoring cycles.
func New(monitor Monitor, interp *console.Interpreter, cycleDelay time.Duration) *Engine {
	return &Engine{
		monitor:    monitor,
		interp:     interp,
		cycleDelay: cycleDelay,
	}
}

// Run loops until ctx is canceled or a measurement fails. A closed lines
// channel stops command handling; monitoring continues.
func (e *Engine) Run(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				break
			}
			if err := e.command(ctx, line, &lines); err != nil {
				return e.stopped(ctx, err)
			}
		default:
		}

		if _, err := e.monitor.Cycle(ctx); err != nil {
			return e.stopped(ctx, err)
		}

		if !e.pause(ctx, e.cycleDelay) {
			return nil
		}
	}
}

// command handles line and, when it starts a calibration, waits for the reference.
func (e *Engine) command(ctx context.Context, line string, lines *<-chan string) error {
	if err := e.interp.Handle(ctx, line); err != nil {
		return err
	}

	for e.interp.Awaiting() {
		line, ok, err := e.waitLine(ctx, *lines)
		if err != nil {
			return err
		}
		if !ok {
			*lines = nil
			e.interp.Cancel()
			return nil
		}
		if err := e.interp.Handle(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

// waitLine blocks for the next line, bounded by the interpreter timeout.
// Expiry is reported to the interpreter and returns ok=true with an empty line.
func (e *Engine) waitLine(ctx context.Context, lines <-chan string) (string, bool, error) {
	if lines == nil {
		return "", false, nil
	}

	var expired <-chan time.Time
	if d := e.interp.Timeout(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case line, ok := <-lines:
		return line, ok, nil
	case <-expired:
		e.interp.Expire()
		return "", true, nil
	}
}

// pause sleeps for d unless ctx is canceled first.
func (e *Engine) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// stopped converts cancellation into a clean stop.
func (e *Engine) stopped(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("failed to run meter: %w", err)
}
