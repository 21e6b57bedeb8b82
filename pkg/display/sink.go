// Package display renders meter readings: periodic log lines, an SSD1306 OLED
// and an MQTT topic.
package display

import (
	"errors"
	"log"

	"github.com/itohio/gospl/pkg/console"
	"github.com/itohio/gospl/pkg/meter"
)

// Sink receives one reading per monitoring cycle.
type Sink interface {
	Render(r meter.Reading) error
}

// Announcer shows short operator feedback, such as a saved calibration.
type Announcer interface {
	Announce(title, detail string)
}

var (
	_ console.Announcer = (Announcer)(nil)
	_ Sink              = (*Multi)(nil)
	_ Announcer         = (*Multi)(nil)
)

// Multi fans readings and announcements out to several receivers.
type Multi struct {
	sinks      []Sink
	announcers []Announcer
}

// NewMulti creates a fan-out. Receivers implementing Announcer also get announcements.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		m.Add(s)
	}
	return m
}

// Add registers a sink. Nil sinks are ignored.
func (m *Multi) Add(s Sink) {
	if s == nil {
		return
	}
	m.sinks = append(m.sinks, s)
	if a, ok := s.(Announcer); ok {
		m.announcers = append(m.announcers, a)
	}
}

// Len returns the number of sinks.
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Render passes r to every sink and joins their errors.
func (m *Multi) Render(r meter.Reading) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Render(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Announce passes the message to every announcer.
func (m *Multi) Announce(title, detail string) {
	for _, a := range m.announcers {
		a.Announce(title, detail)
	}
}

// Attach renders every meter update to sink, logging render failures.
func Attach(m *meter.Meter, sink Sink) {
	m.OnUpdate(func(r meter.Reading) {
		if err := sink.Render(r); err != nil {
			log.Printf("Render failed: %v", err)
		}
	})
}
