package meter

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/itohio/gospl/pkg/calib"
	"github.com/itohio/gospl/pkg/config"
	"github.com/itohio/gospl/pkg/sampler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcquirer struct {
	windows   []sampler.Window
	durations []time.Duration
	err       error
	n         int
}

func (f *fakeAcquirer) AcquireWindow(ctx context.Context, d time.Duration) (sampler.Window, error) {
	f.durations = append(f.durations, d)
	if f.err != nil {
		return sampler.Window{}, f.err
	}
	w := f.windows[min(f.n, len(f.windows)-1)]
	f.n++
	return w, nil
}

// windowFor builds a window whose RMS equals vrms for a 5 V, 10-bit ADC.
func windowFor(vrms float64) sampler.Window {
	adc := vrms * 1023 / 5
	return sampler.Window{Count: 100, SumSquares: 100 * adc * adc}
}

// vrmsFor returns the RMS voltage reading dbfs against 5 V.
func vrmsFor(dbfs float64) float64 {
	return 5 * math.Pow(10, dbfs/20)
}

func newTestMeter(t *testing.T, acq Acquirer, rec calib.Record) (*Meter, *calib.State) {
	t.Helper()
	state := calib.NewState(rec)
	m := New(config.Default(), acq, state)
	base := time.Unix(1000, 0)
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * 200 * time.Millisecond)
	}
	return m, state
}

func TestMeter_CycleCalibrated(t *testing.T) {
	acq := &fakeAcquirer{windows: []sampler.Window{windowFor(vrmsFor(-38.0))}}
	m, _ := newTestMeter(t, acq, calib.NewRecord(114.7))

	r, err := m.Cycle(context.Background())
	require.NoError(t, err)

	assert.True(t, r.HasSignal())
	assert.True(t, r.Calibrated)
	assert.InDelta(t, -38.0, r.DBFS, 1e-9)
	assert.InDelta(t, 76.7, r.SPL, 1e-9)
	assert.InDelta(t, 76.7, r.Value(), 1e-9)
	assert.InDelta(t, (76.7-30)/90, r.Fraction, 1e-9)
	assert.InDelta(t, 76.7, r.PeakSPL, 1e-9)
	assert.Equal(t, LoudnessQuiet, r.Loudness)
	assert.Equal(t, []time.Duration{120 * time.Millisecond}, acq.durations)
	assert.Equal(t, r, m.Last())
}

func TestMeter_CycleUncalibrated(t *testing.T) {
	acq := &fakeAcquirer{windows: []sampler.Window{windowFor(vrmsFor(-40.0))}}
	m, _ := newTestMeter(t, acq, calib.Record{})

	r, err := m.Cycle(context.Background())
	require.NoError(t, err)

	assert.False(t, r.Calibrated)
	assert.InDelta(t, -40.0, r.Value(), 1e-9)
	assert.InDelta(t, 0.5, r.Fraction, 1e-9)
	assert.Equal(t, LoudnessUnknown, r.Loudness)
}

func TestMeter_CycleNoSignal(t *testing.T) {
	acq := &fakeAcquirer{windows: []sampler.Window{{Baseline: 512}}}
	m, _ := newTestMeter(t, acq, calib.NewRecord(100))

	r, err := m.Cycle(context.Background())
	require.NoError(t, err)

	assert.False(t, r.HasSignal())
	assert.Equal(t, 0.0, r.VRMS)
	assert.Equal(t, FloorDBFS(5.0), r.DBFS)
	assert.False(t, math.IsNaN(r.SPL))
	assert.False(t, math.IsInf(r.SPL, 0))
	assert.Equal(t, 0.0, r.Fraction)
}

func TestMeter_CycleLoud(t *testing.T) {
	acq := &fakeAcquirer{windows: []sampler.Window{windowFor(vrmsFor(-10.0))}}
	m, _ := newTestMeter(t, acq, calib.NewRecord(100))

	r, err := m.Cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, LoudnessLoud, r.Loudness)
	assert.InDelta(t, 90.0, r.SPL, 1e-9)
}

func TestMeter_CalibrationChangeAppliesImmediately(t *testing.T) {
	acq := &fakeAcquirer{windows: []sampler.Window{windowFor(vrmsFor(-38.0))}}
	m, state := newTestMeter(t, acq, calib.NewRecord(130))

	r, err := m.Cycle(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 92.0, r.PeakSPL, 1e-9)

	state.Set(114.7)
	r, err = m.Cycle(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 76.7, r.SPL, 1e-9)
	// peak held under the old offset is discarded
	assert.InDelta(t, 76.7, r.PeakSPL, 1e-9)

	state.Reset()
	r, err = m.Cycle(context.Background())
	require.NoError(t, err)
	assert.False(t, r.Calibrated)
}

func TestMeter_CycleError(t *testing.T) {
	boom := errors.New("adc unplugged")
	m, _ := newTestMeter(t, &fakeAcquirer{err: boom}, calib.Record{})

	called := false
	m.OnUpdate(func(Reading) { called = true })

	_, err := m.Cycle(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}

func TestMeter_MeasureReference(t *testing.T) {
	acq := &fakeAcquirer{windows: []sampler.Window{
		windowFor(0.1), windowFor(0.2), windowFor(0.3),
	}}
	m, _ := newTestMeter(t, acq, calib.Record{})

	var passes []int
	ref, err := m.MeasureReference(context.Background(), func(pass int, vrms float64) {
		passes = append(passes, pass)
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, passes)
	require.Len(t, ref.Passes, 3)
	assert.InDelta(t, 0.1, ref.Passes[0], 1e-12)
	assert.InDelta(t, 0.2, ref.VRMS, 1e-12)
	assert.InDelta(t, 20*math.Log10(0.2/5), ref.DBFS, 1e-9)
	for _, d := range acq.durations {
		assert.Equal(t, 400*time.Millisecond, d)
	}
}

func TestMeter_MeasureReferenceSilence(t *testing.T) {
	m, _ := newTestMeter(t, &fakeAcquirer{windows: []sampler.Window{{}}}, calib.Record{})

	ref, err := m.MeasureReference(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Epsilon, ref.VRMS)
	assert.Equal(t, FloorDBFS(5.0), ref.DBFS)
}

func TestMeter_MeasureReferenceError(t *testing.T) {
	boom := errors.New("timeout")
	m, _ := newTestMeter(t, &fakeAcquirer{err: boom}, calib.Record{})

	_, err := m.MeasureReference(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestMeter_Callbacks(t *testing.T) {
	acq := &fakeAcquirer{windows: []sampler.Window{windowFor(0.05)}}
	m, _ := newTestMeter(t, acq, calib.Record{})

	var got []Reading
	m.OnUpdate(func(r Reading) { got = append(got, r) })
	m.OnUpdate(nil)

	_, err := m.Cycle(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	m.Close()
	_, err = m.Cycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1, "no callbacks after Close")

	m.ResetShutdown()
	_, err = m.Cycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestPeakHolder(t *testing.T) {
	p := NewPeakHolder(3 * time.Second)
	t0 := time.Unix(0, 0)

	assert.Equal(t, 10.0, p.Update(10, t0))
	assert.Equal(t, 10.0, p.Update(5, t0.Add(time.Second)))
	assert.Equal(t, 12.0, p.Update(12, t0.Add(2*time.Second)))
	assert.Equal(t, 12.0, p.Update(1, t0.Add(5*time.Second)))
	// hold expired
	assert.Equal(t, 1.0, p.Update(1, t0.Add(5*time.Second+time.Millisecond)))

	p.Reset()
	assert.Equal(t, -100.0, p.Update(-100, t0.Add(6*time.Second)))
}
