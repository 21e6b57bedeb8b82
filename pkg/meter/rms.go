package meter

import (
	"math"

	"github.com/itohio/gospl/pkg/sampler"
)

// Epsilon is the smallest RMS voltage fed into the logarithm.
const Epsilon = 1e-6

// ComputeRMS converts the window's mean squared deviation into an RMS voltage.
// An empty window yields 0.
func ComputeRMS(w sampler.Window, vref, fullScale float64) float64 {
	if fullScale <= 0 {
		return 0
	}
	meanSquare := w.SumSquares / float64(max(1, w.Count))
	return math.Sqrt(meanSquare) * (vref / fullScale)
}

// ComputeDBFS returns the level of vrms relative to vref, in dB.
// The result is never below FloorDBFS(vref).
func ComputeDBFS(vrms, vref float64) float64 {
	if math.IsNaN(vrms) || vrms < Epsilon {
		vrms = Epsilon
	}
	return 20 * math.Log10(vrms/vref)
}

// FloorDBFS is the lowest level ComputeDBFS reports for vref.
func FloorDBFS(vref float64) float64 {
	return 20 * math.Log10(Epsilon/vref)
}
