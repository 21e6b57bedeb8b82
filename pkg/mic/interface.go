// Package mic provides raw microphone readings from an analog-to-digital converter.
package mic

import (
	"errors"
	"fmt"

	"github.com/itohio/gospl/pkg/config"
	"github.com/itohio/gospl/pkg/sampler"
)

// ErrNotConnected is returned when a device is used before Connect or after Close.
var ErrNotConnected = errors.New("not connected")

// Device defines the interface for microphone ADC sources (real or mocked).
type Device interface {
	Connect() error
	Close() error
	// ReadRaw returns the next raw ADC reading. It may block until a reading is available.
	ReadRaw() (uint16, error)
	IsConnected() bool
}

var (
	_ Device = (*Serial)(nil)
	_ Device = (*Mock)(nil)
	_ Device = (*ADS)(nil)

	_ sampler.Stream = (*Serial)(nil)
)

// Open creates the device selected by cfg.Source. The device is not connected.
func Open(cfg *config.Config) (Device, error) {
	switch cfg.Source {
	case config.SourceMock:
		return NewMock(&cfg.Mock, cfg.Sampling.SampleRate, uint16(cfg.ADC.FullScale())), nil
	case config.SourceSerial:
		dev := New(cfg.Serial.Port, cfg.Serial.BaudRate, DefaultBufferSize)
		dev.SetMaxReading(uint16(cfg.ADC.FullScale()))
		return dev, nil
	case config.SourceADS:
		return NewADS(cfg.ADS, cfg.ADC.VRef, cfg.Sampling.SampleRate), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}
