package meter

import (
	"math"

	"github.com/itohio/gospl/pkg/calib"
)

// EstimateSPL applies the calibration offset to dbfs.
// It returns false when the record is not valid.
func EstimateSPL(dbfs float64, rec calib.Record) (float64, bool) {
	if !rec.Valid {
		return 0, false
	}
	return dbfs + rec.Offset, true
}

// Normalize maps v linearly onto [0,1] over [lo, hi], clamping outside values.
func Normalize(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v <= lo {
		return 0
	}
	if v >= hi || hi <= lo {
		return 1
	}
	return (v - lo) / (hi - lo)
}

// Loudness classifies a calibrated sound pressure level.
type Loudness int

const (
	// LoudnessUnknown is reported when no calibrated SPL is available.
	LoudnessUnknown Loudness = iota
	LoudnessQuiet
	LoudnessLoud
)

func (l Loudness) String() string {
	switch l {
	case LoudnessQuiet:
		return "quiet"
	case LoudnessLoud:
		return "loud"
	default:
		return "unknown"
	}
}

// Classify compares a calibrated SPL against threshold.
// Uncalibrated levels are never classified.
func Classify(spl float64, calibrated bool, threshold float64) Loudness {
	if !calibrated {
		return LoudnessUnknown
	}
	if spl >= threshold {
		return LoudnessLoud
	}
	return LoudnessQuiet
}
