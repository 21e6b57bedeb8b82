package display

import (
	"fmt"
	"io"
	"time"

	"github.com/itohio/gospl/pkg/meter"
)

// LogSink writes a measurement line to the operator stream at most once per interval.
type LogSink struct {
	out      io.Writer
	interval time.Duration
	last     time.Time
}

// NewLogSink creates a throttled log sink. A zero interval logs every reading.
func NewLogSink(out io.Writer, interval time.Duration) *LogSink {
	return &LogSink{
		out:      out,
		interval: interval,
	}
}

// Render writes r when the interval since the previous line has passed.
func (s *LogSink) Render(r meter.Reading) error {
	if !s.last.IsZero() && r.Timestamp.Sub(s.last) < s.interval {
		return nil
	}
	s.last = r.Timestamp

	if _, err := fmt.Fprintln(s.out, FormatLine(r)); err != nil {
		return fmt.Errorf("failed to write log line: %w", err)
	}
	return nil
}

// FormatLine formats a reading the way the log sink prints it.
func FormatLine(r meter.Reading) string {
	line := fmt.Sprintf("Vrms: %.6f V, dBFS: %.2f dBFS, SPL: ", r.VRMS, r.DBFS)
	if r.Calibrated {
		line += fmt.Sprintf("%.2f", r.SPL)
	} else {
		line += "N/A (not calibrated)"
	}
	if !r.HasSignal() {
		line += " (no signal)"
	}
	return line
}
