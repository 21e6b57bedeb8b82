// Package console implements the line-oriented calibration command protocol.
//
// Commands are case-insensitive single letters:
//
//	c  measure the reference level and wait for the reference SPL
//	s  persist the in-memory calibration
//	r  clear the calibration
//	p  print the calibration
//
// While a calibration waits for its reference, the next line is either a
// number (the reference SPL) or "skip".
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/itohio/gospl/pkg/calib"
	"github.com/itohio/gospl/pkg/meter"
)

// CancelToken aborts a pending calibration.
const CancelToken = "skip"

// Reference SPL bounds accepted from the operator (dB).
const (
	MinReference = 0.0
	MaxReference = 200.0
)

var (
	// ErrNothingToSave is reported when saving without a valid calibration.
	ErrNothingToSave = errors.New("no calibration to save")
	// ErrInvalidReference is reported for a reference that is not a usable SPL.
	ErrInvalidReference = errors.New("invalid reference")
)

// State is the interpreter session state.
type State int

const (
	StateIdle State = iota
	StateAwaitingReference
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingReference:
		return "awaiting reference"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Measurer runs the calibration measurement passes.
type Measurer interface {
	MeasureReference(ctx context.Context, progress meter.ProgressFunc) (meter.Reference, error)
}

var _ Measurer = (*meter.Meter)(nil)

// Announcer shows short operator feedback outside the command stream.
type Announcer interface {
	Announce(title, detail string)
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithTimeout bounds the wait for a calibration reference. Zero waits forever.
func WithTimeout(d time.Duration) Option {
	return func(i *Interpreter) {
		i.timeout = d
	}
}

// WithAnnouncer adds a receiver for calibration results.
func WithAnnouncer(a Announcer) Option {
	return func(i *Interpreter) {
		if a != nil {
			i.announcers = append(i.announcers, a)
		}
	}
}

// Interpreter is the command state machine. It is not safe for concurrent use;
// the shared calibration is published through calib.State.
type Interpreter struct {
	out        io.Writer
	measurer   Measurer
	store      calib.Store
	shared     *calib.State
	timeout    time.Duration
	announcers []Announcer

	state   State
	pending meter.Reference
}

// New creates an idle interpreter writing protocol text to out.
func New(out io.Writer, measurer Measurer, store calib.Store, state *calib.State, opts ...Option) *Interpreter {
	i := &Interpreter{
		out:      out,
		measurer: measurer,
		store:    store,
		shared:   state,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// State returns the current session state.
func (i *Interpreter) State() State {
	return i.state
}

// Awaiting reports whether a calibration waits for its reference.
func (i *Interpreter) Awaiting() bool {
	return i.state == StateAwaitingReference
}

// Timeout returns the reference wait bound; zero means none.
func (i *Interpreter) Timeout() time.Duration {
	return i.timeout
}

// PrintHelp writes the command summary.
func (i *Interpreter) PrintHelp() {
	PrintHelp(i.out)
}

// Greet reports the calibration found at startup, followed by help.
func (i *Interpreter) Greet() {
	rec := i.shared.Snapshot()
	if rec.Valid {
		fmt.Fprintf(i.out, "[INFO] Loaded CALIB_OFFSET = %s\n", rec)
	} else {
		fmt.Fprintln(i.out, "[INFO] No valid calibration in storage. Use 'c' to calibrate.")
	}
	i.PrintHelp()
}

// Handle processes one input line. Blank lines are ignored. Operator
// mistakes are reported on the output stream; the returned error is
// reserved for measurement failures, after which the session is idle.
func (i *Interpreter) Handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if i.state == StateAwaitingReference {
		i.reference(line)
		return nil
	}

	switch strings.ToLower(line) {
	case "c":
		return i.calibrate(ctx)
	case "s":
		i.save()
	case "r":
		i.reset()
	case "p":
		fmt.Fprintf(i.out, "[INFO] CALIB_OFFSET = %s\n", i.shared.Snapshot())
	default:
		fmt.Fprintln(i.out, "[ERR] Unknown command.")
	}
	i.PrintHelp()
	return nil
}

// Cancel abandons a pending calibration without touching the stored one.
func (i *Interpreter) Cancel() {
	if i.state != StateAwaitingReference {
		return
	}
	i.idle()
	fmt.Fprintln(i.out, "[INFO] Calibration canceled.")
	i.PrintHelp()
}

// Expire abandons a pending calibration whose reference never arrived.
func (i *Interpreter) Expire() {
	if i.state != StateAwaitingReference {
		return
	}
	i.idle()
	fmt.Fprintln(i.out, "[WARN] Calibration timed out.")
	i.PrintHelp()
}

func (i *Interpreter) idle() {
	i.state = StateIdle
	i.pending = meter.Reference{}
}

func (i *Interpreter) calibrate(ctx context.Context) error {
	fmt.Fprintln(i.out, "\n[CMD] Calibration started...")
	fmt.Fprintln(i.out, "Place a steady tone or noise source near the mic.")

	ref, err := i.measurer.MeasureReference(ctx, func(pass int, vrms float64) {
		fmt.Fprintf(i.out, "  meas Vrms: %.6f V\n", vrms)
	})
	if err != nil {
		i.idle()
		fmt.Fprintf(i.out, "[ERR] Calibration measurement failed: %v\n", err)
		i.PrintHelp()
		return fmt.Errorf("failed to measure calibration reference: %w", err)
	}

	fmt.Fprintf(i.out, "\nMeasured Vrms (avg) = %.6f V\n", ref.VRMS)
	fmt.Fprintf(i.out, "Measured dBFS = %.3f dBFS\n", ref.DBFS)

	i.pending = ref
	i.state = StateAwaitingReference

	i.PrintHelp()
	fmt.Fprintln(i.out, "Type reference SPL (e.g., 75.5) then Enter, or type 'skip' to cancel:")
	return nil
}

func (i *Interpreter) reference(line string) {
	if strings.EqualFold(line, CancelToken) {
		i.Cancel()
		return
	}

	ref := i.pending
	i.idle()
	defer i.PrintHelp()

	spl, err := ParseReference(line)
	if err != nil {
		fmt.Fprintln(i.out, "[ERR] Invalid number. Calibration aborted.")
		return
	}

	offset := spl - ref.DBFS
	if !calib.Plausible(offset) {
		fmt.Fprintf(i.out, "[ERR] Offset %.4f out of range. Calibration aborted.\n", offset)
		return
	}

	i.shared.Set(offset)
	if err := i.store.Save(offset); err != nil {
		log.Printf("Failed to persist calibration: %v", err)
		fmt.Fprintf(i.out, "[WARN] Calibration applied but not saved: %v\n", err)
		return
	}

	fmt.Fprintf(i.out, "[OK] Calibration saved. CALIB_OFFSET = %.4f\n", offset)
	for _, a := range i.announcers {
		a.Announce("Calibration saved:", fmt.Sprintf("offset = %.2f", offset))
	}
}

func (i *Interpreter) save() {
	if err := i.persist(); err != nil {
		if errors.Is(err, ErrNothingToSave) {
			fmt.Fprintln(i.out, "[ERR] No calibration to save.")
			return
		}
		log.Printf("Failed to persist calibration: %v", err)
		fmt.Fprintf(i.out, "[ERR] %v\n", err)
		return
	}
	fmt.Fprintln(i.out, "[OK] Calibration saved.")
}

// persist writes the in-memory calibration to the store.
func (i *Interpreter) persist() error {
	rec := i.shared.Snapshot()
	if !rec.Valid {
		return ErrNothingToSave
	}
	if err := i.store.Save(rec.Offset); err != nil {
		return fmt.Errorf("failed to save calibration: %w", err)
	}
	return nil
}

func (i *Interpreter) reset() {
	i.shared.Reset()
	if err := i.store.Clear(); err != nil {
		log.Printf("Failed to clear stored calibration: %v", err)
		fmt.Fprintf(i.out, "[ERR] failed to clear stored calibration: %v\n", err)
		return
	}
	fmt.Fprintln(i.out, "[OK] Calibration cleared.")
}

// ParseReference parses an operator supplied reference SPL.
func ParseReference(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < MinReference || v >= MaxReference {
		return 0, fmt.Errorf("%w: %v out of range", ErrInvalidReference, v)
	}
	return v, nil
}
