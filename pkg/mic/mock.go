package mic

import (
	"fmt"
	"math"
	"sync"

	"github.com/itohio/gospl/pkg/config"
)

// Mock simulates a biased microphone playing a steady tone.
// Readings are a deterministic function of the read count, so the signal
// advances by one sample period per ReadRaw call regardless of wall time.
type Mock struct {
	cfg        config.MockConfig
	sampleRate float64
	fullScale  float64

	mu        sync.RWMutex
	connected bool
	n         uint64
}

// NewMock creates a new mocked microphone.
func NewMock(cfg *config.MockConfig, sampleRate int, fullScale uint16) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}
	if sampleRate <= 0 {
		sampleRate = 5000
	}
	if fullScale == 0 {
		fullScale = 1023
	}

	return &Mock{
		cfg:        *cfg,
		sampleRate: float64(sampleRate),
		fullScale:  float64(fullScale),
	}
}

// Connect simulates connecting to the device.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	m.connected = true
	m.n = 0
	return nil
}

// Close stops the mocked device.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// SetAmplitude changes the simulated tone amplitude (ADC counts).
func (m *Mock) SetAmplitude(amplitude float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Amplitude = amplitude
}

// ReadRaw generates the next simulated reading.
func (m *Mock) ReadRaw() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, ErrNotConnected
	}

	t := float64(m.n) / m.sampleRate
	m.n++

	tone := m.cfg.Amplitude * math.Sin(2*math.Pi*m.cfg.Frequency*t)
	noise := (math.Sin(float64(m.n)*1.37) + math.Cos(float64(m.n)*0.71)) * m.cfg.NoiseLevel * 0.5

	v := math.Round(m.cfg.Bias + tone + noise)
	if v < 0 {
		v = 0
	} else if v > m.fullScale {
		v = m.fullScale
	}

	return uint16(v), nil
}
