// Package calib persists the SPL calibration offset and shares it in memory.
//
// The persisted layout is an EEPROM image: one little-endian float32 at a
// fixed address. A non-finite value (NaN, which is also what erased 0xFF
// bytes decode to) marks "no calibration". Above the storage layer the
// calibration is always an explicit Record.
package calib

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/chewxy/math32"
)

// Plausible offset bounds (dB), exclusive.
const (
	MinOffset = -200.0
	MaxOffset = 200.0
)

// cellSize is the size of the persisted float32.
const cellSize = 4

// ErrOutOfRange is returned when an offset outside the plausible range is saved.
var ErrOutOfRange = errors.New("calibration offset out of range")

// Record is a calibration offset tagged with its validity.
// SPL = dBFS + Offset, only when Valid.
type Record struct {
	Offset float64
	Valid  bool
}

// NewRecord returns a valid record for offset.
func NewRecord(offset float64) Record {
	return Record{Offset: offset, Valid: true}
}

// normalized zeroes the offset of an invalid record.
func (r Record) normalized() Record {
	if !r.Valid {
		return Record{}
	}
	return r
}

// String formats the offset with four decimals, or "not set".
func (r Record) String() string {
	if !r.Valid {
		return "not set"
	}
	return fmt.Sprintf("%.4f", r.Offset)
}

// Plausible reports whether offset is finite and inside the physical range.
func Plausible(offset float64) bool {
	return !math.IsNaN(offset) && !math.IsInf(offset, 0) && offset > MinOffset && offset < MaxOffset
}

// Store persists a single calibration offset.
type Store interface {
	// Load returns the persisted calibration. Absent or implausible data
	// yields an invalid record, not an error.
	Load() (Record, error)
	// Save persists offset as the valid calibration.
	Save(offset float64) error
	// Clear marks the persisted calibration invalid.
	Clear() error
}

var _ Store = (*FileStore)(nil)

// FileStore keeps the calibration cell inside an EEPROM image file.
type FileStore struct {
	path    string
	address int64

	mu sync.Mutex
}

// NewFileStore creates a store writing the cell at address inside path.
func NewFileStore(path string, address int64) *FileStore {
	return &FileStore{
		path:    path,
		address: address,
	}
}

// Path returns the image file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the calibration cell.
func (s *FileStore) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("failed to read calibration: %w", err)
	}

	if int64(len(data)) < s.address+cellSize {
		return Record{}, nil
	}

	f := math32.Float32frombits(binary.LittleEndian.Uint32(data[s.address:]))
	if math32.IsNaN(f) || math32.IsInf(f, 0) {
		return Record{}, nil
	}

	offset := float64(f)
	if !Plausible(offset) {
		return Record{}, nil
	}

	return NewRecord(offset), nil
}

// Save writes offset as the new calibration.
func (s *FileStore) Save(offset float64) error {
	f := float32(offset)
	if !Plausible(float64(f)) {
		return fmt.Errorf("%w: %v", ErrOutOfRange, offset)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(f)
}

// Clear writes the NaN sentinel.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(math32.NaN())
}

// write replaces the cell, preserving the rest of the image. The image is
// rewritten through a temporary file so a power loss leaves either the old
// or the new image.
func (s *FileStore) write(v float32) error {
	image, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read calibration image: %w", err)
	}

	if need := s.address + cellSize; int64(len(image)) < need {
		grown := make([]byte, need)
		copy(grown, image)
		// erased EEPROM cells read as 0xFF
		for i := len(image); i < len(grown); i++ {
			grown[i] = 0xFF
		}
		image = grown
	}

	binary.LittleEndian.PutUint32(image[s.address:], math32.Float32bits(v))

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create calibration directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create calibration image: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(image); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write calibration image: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync calibration image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close calibration image: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace calibration image: %w", err)
	}

	return nil
}
