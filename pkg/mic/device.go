package mic

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the standard baud rate for the XIAO SAMD21 firmware.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size of the readings buffer.
	DefaultBufferSize = 4096
	// DefaultReadTimeout bounds how long ReadRaw waits for the firmware.
	DefaultReadTimeout = time.Second
	// DefaultMaxReading is the largest value the 12-bit firmware reports.
	DefaultMaxReading = 4095
	// DropLogInterval is the minimum time between two "buffer full" messages.
	DropLogInterval = time.Second
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Serial reads raw microphone samples streamed by the firmware over a serial port.
type Serial struct {
	port        string
	baudRate    int
	bufSize     int
	readTimeout time.Duration
	maxReading  uint16
	dropped     atomic.Uint64

	conn      serial.Port
	readings  chan uint16
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// New creates a new Serial instance with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	return &Serial{
		port:        port,
		baudRate:    baudRate,
		bufSize:     bufSize,
		readTimeout: DefaultReadTimeout,
		maxReading:  DefaultMaxReading,
	}
}

// SetMaxReading sets the largest reading accepted from the firmware.
// Lines holding a larger value are rejected. Zero restores the default.
func (d *Serial) SetMaxReading(v uint16) {
	if v == 0 {
		v = DefaultMaxReading
	}
	d.mu.Lock()
	d.maxReading = v
	d.mu.Unlock()
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{
			Name:        name,
			Description: name,
		})
	}

	return result, nil
}

// Connect opens the serial port and starts reading samples.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := serial.Open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	d.start(port)
	return nil
}

// start begins streaming from an already opened connection.
func (d *Serial) start(conn serial.Port) {
	d.conn = conn
	d.readings = make(chan uint16, d.bufSize)
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.connected = true

	go d.readSamples(d.ctx, conn, d.readings)
}

// Close closes the connection and stops reading samples.
func (d *Serial) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}

	d.cancel()

	if d.conn != nil {
		if err := d.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
		d.conn = nil
	}

	d.connected = false
	return nil
}

// ReadRaw returns the next reading streamed by the firmware.
func (d *Serial) ReadRaw() (uint16, error) {
	d.mu.RLock()
	readings := d.readings
	connected := d.connected
	d.mu.RUnlock()

	if !connected {
		return 0, ErrNotConnected
	}

	timer := time.NewTimer(d.readTimeout)
	defer timer.Stop()

	select {
	case v, ok := <-readings:
		if !ok {
			return 0, fmt.Errorf("serial stream closed: %w", io.EOF)
		}
		return v, nil
	case <-timer.C:
		return 0, fmt.Errorf("no samples from %s within %s", d.port, d.readTimeout)
	}
}

// Flush discards the queued readings and returns how many were dropped.
func (d *Serial) Flush() int {
	d.mu.RLock()
	readings := d.readings
	d.mu.RUnlock()

	n := 0
	for {
		select {
		case _, ok := <-readings:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// Dropped returns how many readings were lost because the queue was full.
func (d *Serial) Dropped() uint64 {
	return d.dropped.Load()
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// readSamples reads lines from the serial port and queues their readings.
// The readings channel is closed when the stream ends.
func (d *Serial) readSamples(ctx context.Context, r io.Reader, out chan<- uint16) {
	defer close(out)
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Panic in readSamples: %v", rec)
		}
	}()

	d.mu.RLock()
	maxReading := d.maxReading
	d.mu.RUnlock()

	var (
		dropped  int
		lastDrop time.Time
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		values, err := parseLine(line, maxReading)
		if err != nil {
			log.Printf("Failed to parse line '%s': %v", line, err)
			continue
		}

		for _, v := range values {
			select {
			case out <- v:
			case <-ctx.Done():
				return
			default:
				d.dropped.Add(1)
				dropped++
				if now := time.Now(); now.Sub(lastDrop) >= DropLogInterval {
					log.Printf("Readings buffer full, dropped %d samples", dropped)
					dropped = 0
					lastDrop = now
				}
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("Error reading from serial port: %v", err)
	}
}

// parseLine parses a batch line from the firmware.
// Format: comma-separated raw readings, e.g. "512,530,498,507".
func parseLine(line string, maxReading uint16) ([]uint16, error) {
	parts := strings.Split(line, ",")
	values := make([]uint16, 0, len(parts))

	for i, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid reading %d: %w", i, err)
		}
		if v > uint64(maxReading) {
			return nil, fmt.Errorf("reading out of range: %d (max %d)", v, maxReading)
		}
		values = append(values, uint16(v))
	}

	return values, nil
}
