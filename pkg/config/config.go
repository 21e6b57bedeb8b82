package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Source names accepted in Config.Source.
const (
	SourceMock   = "mock"
	SourceSerial = "serial"
	SourceADS    = "ads1115"
)

// Config represents the application configuration.
type Config struct {
	Source      string            `yaml:"source" validate:"oneof=mock serial ads1115"`
	Serial      SerialConfig      `yaml:"serial"`
	ADS         ADSConfig         `yaml:"ads"`
	ADC         ADCConfig         `yaml:"adc"`
	Sampling    SamplingConfig    `yaml:"sampling"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Display     DisplayConfig     `yaml:"display"`
	OLED        OLEDConfig        `yaml:"oled"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains the firmware serial link configuration.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate" validate:"gte=0"`
}

// ADSConfig contains ADS1115 configuration for hosts with an I2C bus.
type ADSConfig struct {
	Bus     string `yaml:"bus"`     // I2C bus name ("" = first available)
	Address uint16 `yaml:"address"` // I2C address (0x48 default)
	Channel int    `yaml:"channel" validate:"gte=0,lte=3"`
}

// ADCConfig describes the converter that produced the raw readings.
type ADCConfig struct {
	VRef       float64 `yaml:"vref" validate:"gt=0"`
	Resolution int     `yaml:"resolution" validate:"gte=8,lte=16"` // bits
}

// SamplingConfig contains the measurement window parameters.
type SamplingConfig struct {
	SampleRate      int           `yaml:"sample_rate" validate:"gt=0"` // samples per second
	Window          time.Duration `yaml:"window" validate:"gt=0"`
	BaselineSamples int           `yaml:"baseline_samples" validate:"gte=1"`
	BaselineSpacing time.Duration `yaml:"baseline_spacing" validate:"gte=0"`
	CycleDelay      time.Duration `yaml:"cycle_delay" validate:"gte=0"` // pause between monitoring cycles
}

// CalibrationConfig contains calibration storage and measurement parameters.
type CalibrationConfig struct {
	Path             string        `yaml:"path" validate:"required"`
	Address          int64         `yaml:"address" validate:"gte=0"`
	Passes           int           `yaml:"passes" validate:"gte=1,lte=10"`
	PassWindow       time.Duration `yaml:"pass_window" validate:"gt=0"`
	ReferenceTimeout time.Duration `yaml:"reference_timeout" validate:"gte=0"` // 0 waits forever
}

// DisplayConfig contains level display parameters.
type DisplayConfig struct {
	MinSPL        float64       `yaml:"min_spl"`
	MaxSPL        float64       `yaml:"max_spl" validate:"gtfield=MinSPL"`
	MinDBFS       float64       `yaml:"min_dbfs"`
	MaxDBFS       float64       `yaml:"max_dbfs" validate:"gtfield=MinDBFS"`
	LoudThreshold float64       `yaml:"loud_threshold"` // SPL (dB) at or above which the level is loud
	PeakHold      time.Duration `yaml:"peak_hold" validate:"gte=0"`
	LogInterval   time.Duration `yaml:"log_interval" validate:"gte=0"`
	History       time.Duration `yaml:"history" validate:"gte=0"` // gauge trace span
}

// OLEDConfig contains SSD1306 display configuration.
type OLEDConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Bus       string   `yaml:"bus"`
	Addresses []uint16 `yaml:"addresses" validate:"required_if=Enabled true"`
}

// MQTTConfig contains the optional MQTT publisher configuration.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // empty disables publishing
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic" validate:"required_with=Broker"`
}

// MockConfig contains synthetic microphone configuration.
type MockConfig struct {
	Bias       float64 `yaml:"bias"`       // DC bias (ADC counts)
	Amplitude  float64 `yaml:"amplitude"`  // tone amplitude (ADC counts)
	Frequency  float64 `yaml:"frequency"`  // tone frequency (Hz)
	NoiseLevel float64 `yaml:"noise_level"` // noise amplitude (ADC counts)
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Source: SourceMock,
		Serial: SerialConfig{
			Port:     "COM3", // Default for Windows, should be "/dev/ttyACM0" on Linux/Mac
			BaudRate: 115200,
		},
		ADS: ADSConfig{
			Address: 0x48,
			Channel: 0,
		},
		ADC: ADCConfig{
			VRef:       5.0,
			Resolution: 10,
		},
		Sampling: SamplingConfig{
			SampleRate:      5000,
			Window:          120 * time.Millisecond,
			BaselineSamples: 16,
			BaselineSpacing: 200 * time.Microsecond,
			CycleDelay:      80 * time.Millisecond,
		},
		Calibration: CalibrationConfig{
			Path:             "calibration.eeprom",
			Address:          0,
			Passes:           3,
			PassWindow:       400 * time.Millisecond,
			ReferenceTimeout: 60 * time.Second,
		},
		Display: DisplayConfig{
			MinSPL:        30,
			MaxSPL:        120,
			MinDBFS:       -80,
			MaxDBFS:       0,
			LoudThreshold: 85,
			PeakHold:      3 * time.Second,
			LogInterval:   1500 * time.Millisecond,
			History:       30 * time.Second,
		},
		OLED: OLEDConfig{
			Enabled:   false,
			Addresses: []uint16{0x3C, 0x3D},
		},
		MQTT: MQTTConfig{
			ClientID: "gospl-meter",
			Topic:    "gospl/level",
		},
		Mock: MockConfig{
			Bias:       512,
			Amplitude:  40,
			Frequency:  440,
			NoiseLevel: 2,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration against its field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// FullScale returns the largest raw reading the configured ADC produces.
func (c *ADCConfig) FullScale() float64 {
	return float64(uint32(1)<<uint(c.Resolution) - 1)
}

// SamplePeriod returns the target interval between two readings.
func (c *SamplingConfig) SamplePeriod() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.SampleRate)
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Source == "" {
		c.Source = def.Source
	}
	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.ADS.Address == 0 {
		c.ADS.Address = def.ADS.Address
	}

	if c.ADC.VRef == 0 {
		c.ADC.VRef = def.ADC.VRef
	}
	if c.ADC.Resolution == 0 {
		c.ADC.Resolution = def.ADC.Resolution
	}

	if c.Sampling.SampleRate == 0 {
		c.Sampling.SampleRate = def.Sampling.SampleRate
	}
	if c.Sampling.Window == 0 {
		c.Sampling.Window = def.Sampling.Window
	}
	if c.Sampling.BaselineSamples == 0 {
		c.Sampling.BaselineSamples = def.Sampling.BaselineSamples
	}

	if c.Calibration.Path == "" {
		c.Calibration.Path = def.Calibration.Path
	}
	if c.Calibration.Passes == 0 {
		c.Calibration.Passes = def.Calibration.Passes
	}
	if c.Calibration.PassWindow == 0 {
		c.Calibration.PassWindow = def.Calibration.PassWindow
	}

	if c.Display.MinSPL == 0 && c.Display.MaxSPL == 0 {
		c.Display.MinSPL = def.Display.MinSPL
		c.Display.MaxSPL = def.Display.MaxSPL
	}
	if c.Display.MinDBFS == 0 && c.Display.MaxDBFS == 0 {
		c.Display.MinDBFS = def.Display.MinDBFS
		c.Display.MaxDBFS = def.Display.MaxDBFS
	}
	if c.Display.LoudThreshold == 0 {
		c.Display.LoudThreshold = def.Display.LoudThreshold
	}
	if c.Display.History == 0 {
		c.Display.History = def.Display.History
	}

	if len(c.OLED.Addresses) == 0 {
		c.OLED.Addresses = def.OLED.Addresses
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = def.MQTT.Topic
	}

	if c.Mock.Frequency == 0 {
		c.Mock.Frequency = def.Mock.Frequency
	}
}
