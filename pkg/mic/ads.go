package mic

import (
	"fmt"
	"sync"

	"github.com/itohio/gospl/pkg/config"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// ADSFullScale is the largest single-ended ADS1115 reading. Configure the ADC
// resolution as 15 bits and vref as the programmed full-scale voltage.
const ADSFullScale = 32767

// ADS reads the microphone through an ADS1115 on an I2C bus.
type ADS struct {
	cfg        config.ADSConfig
	maxVoltage physic.ElectricPotential
	rate       physic.Frequency

	mu        sync.Mutex
	bus       i2c.BusCloser
	pin       ads1x15.PinADC
	connected bool
}

// NewADS creates an ADS1115 source. vref is the full-scale input voltage and
// sampleRate the requested conversion rate (the chip caps it at 860 SPS).
func NewADS(cfg config.ADSConfig, vref float64, sampleRate int) *ADS {
	return &ADS{
		cfg:        cfg,
		maxVoltage: physic.ElectricPotential(vref * float64(physic.Volt)),
		rate:       physic.Frequency(sampleRate) * physic.Hertz,
	}
}

var channels = [...]ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

// Connect initializes the host drivers, opens the bus and configures the channel.
func (a *ADS) Connect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		return fmt.Errorf("already connected")
	}
	if a.cfg.Channel < 0 || a.cfg.Channel >= len(channels) {
		return fmt.Errorf("invalid ADS channel %d", a.cfg.Channel)
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(a.cfg.Bus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}

	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: a.cfg.Address})
	if err != nil {
		bus.Close()
		return fmt.Errorf("failed to initialize ADS1115 at 0x%02X: %w", a.cfg.Address, err)
	}

	pin, err := dev.PinForChannel(channels[a.cfg.Channel], a.maxVoltage, a.rate, ads1x15.BestQuality)
	if err != nil {
		bus.Close()
		return fmt.Errorf("failed to configure ADS channel %d: %w", a.cfg.Channel, err)
	}

	a.bus = bus
	a.pin = pin
	a.connected = true
	return nil
}

// Close halts conversions and releases the bus.
func (a *ADS) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected {
		return nil
	}

	a.connected = false
	if err := a.pin.Halt(); err != nil {
		a.bus.Close()
		return fmt.Errorf("failed to halt ADS channel: %w", err)
	}
	return a.bus.Close()
}

// ReadRaw performs a single conversion.
func (a *ADS) ReadRaw() (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected {
		return 0, ErrNotConnected
	}

	s, err := a.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read ADS channel: %w", err)
	}

	raw := s.Raw
	if raw < 0 {
		raw = 0
	} else if raw > ADSFullScale {
		raw = ADSFullScale
	}
	return uint16(raw), nil
}

// IsConnected returns whether the device is currently connected.
func (a *ADS) IsConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}
