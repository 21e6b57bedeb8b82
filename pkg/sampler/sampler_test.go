package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/itohio/gospl/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when slept on or when a read costs time.
type fakeClock struct {
	now    time.Time
	slept  time.Duration
	sleeps int
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.now = c.now.Add(d)
	c.slept += d
	c.sleeps++
}

// fakeSource returns values from fn and advances the clock by cost per read.
type fakeSource struct {
	clock *fakeClock
	cost  time.Duration
	n     int
	fn    func(n int) uint16
	err   error
}

func (s *fakeSource) ReadRaw() (uint16, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.clock.now = s.clock.now.Add(s.cost)
	v := s.fn(s.n)
	s.n++
	return v, nil
}

func constant(v uint16) func(int) uint16 {
	return func(int) uint16 { return v }
}

var testOpts = Options{
	SamplePeriod:    200 * time.Microsecond,
	BaselineSamples: 16,
	BaselineSpacing: 200 * time.Microsecond,
}

func TestAcquireWindow_ConstantSignal(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	src := &fakeSource{clock: clock, fn: constant(512)}
	s := New(src, clock, testOpts)

	w, err := s.AcquireWindow(context.Background(), 120*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, 512.0, w.Baseline)
	assert.Equal(t, 0.0, w.SumSquares)
	// 3.2 ms of baseline, then one reading per 200 µs
	assert.Equal(t, 584, w.Count)
	assert.Equal(t, 512.0, w.Mean())
	assert.Equal(t, 120*time.Millisecond, w.Elapsed)
}

func TestAcquireWindow_SquareWave(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	// Alternates 490/510 so the baseline (16 readings) is exactly 500
	src := &fakeSource{clock: clock, fn: func(n int) uint16 {
		if n%2 == 0 {
			return 490
		}
		return 510
	}}
	s := New(src, clock, testOpts)

	w, err := s.AcquireWindow(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, 500.0, w.Baseline)
	require.Greater(t, w.Count, 0)
	assert.InDelta(t, 100.0, w.SumSquares/float64(w.Count), 1e-9)
}

func TestAcquireWindow_SlowReadsNeverWaitNegative(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	src := &fakeSource{clock: clock, cost: 300 * time.Microsecond, fn: constant(100)}
	s := New(src, clock, testOpts)

	w, err := s.AcquireWindow(context.Background(), 120*time.Millisecond)
	require.NoError(t, err)

	// Only the baseline spacing was slept; reading loop issued no waits
	assert.Equal(t, 16, clock.sleeps)
	assert.Equal(t, 16*200*time.Microsecond, clock.slept)
	// 8 ms baseline, then 300 µs per reading
	assert.Equal(t, 374, w.Count)
}

func TestAcquireWindow_PartialReadCost(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	src := &fakeSource{clock: clock, cost: 50 * time.Microsecond, fn: constant(100)}
	opts := testOpts
	opts.BaselineSpacing = 0
	s := New(src, clock, opts)

	w, err := s.AcquireWindow(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)

	// Each reading is padded to the full period
	assert.Equal(t, w.Count, clock.sleeps)
	assert.Equal(t, time.Duration(w.Count)*150*time.Microsecond, clock.slept)
}

func TestAcquireWindow_ZeroSamples(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	src := &fakeSource{clock: clock, fn: constant(300)}
	s := New(src, clock, testOpts)

	// Baseline alone takes longer than the window
	w, err := s.AcquireWindow(context.Background(), time.Millisecond)
	require.NoError(t, err)

	assert.True(t, w.Empty())
	assert.Equal(t, 0, w.Count)
	assert.Equal(t, 300.0, w.Mean())
}

func TestAcquireWindow_ReadError(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	boom := errors.New("adc gone")
	src := &fakeSource{clock: clock, fn: constant(0), err: boom}
	s := New(src, clock, testOpts)

	_, err := s.AcquireWindow(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, boom)
}

func TestAcquireWindow_Canceled(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	src := &fakeSource{clock: clock, fn: constant(0)}
	s := New(src, clock, testOpts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.AcquireWindow(ctx, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Defaults(t *testing.T) {
	s := New(&fakeSource{fn: constant(0)}, nil, Options{})
	assert.IsType(t, SystemClock{}, s.clock)
	assert.Equal(t, DefaultBaselineSamples, s.opts.BaselineSamples)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	opts := OptionsFromConfig(&cfg.Sampling)

	assert.Equal(t, 200*time.Microsecond, opts.SamplePeriod)
	assert.Equal(t, 16, opts.BaselineSamples)
	assert.Equal(t, 200*time.Microsecond, opts.BaselineSpacing)
}

func TestAcquireWindow_SystemClock(t *testing.T) {
	src := &fakeSource{clock: &fakeClock{}, fn: constant(10)}
	s := New(src, nil, Options{SamplePeriod: time.Millisecond, BaselineSamples: 4})

	start := time.Now()
	w, err := s.AcquireWindow(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Greater(t, w.Count, 0)
	assert.LessOrEqual(t, w.Count, 21)
}

// fakeStream queues readings and advances the clock by cost per read, like a
// device that samples on its own clock.
type fakeStream struct {
	clock   *fakeClock
	cost    time.Duration
	queue   []uint16
	next    uint16
	flushes int
}

func (s *fakeStream) ReadRaw() (uint16, error) {
	s.clock.now = s.clock.now.Add(s.cost)
	if len(s.queue) > 0 {
		v := s.queue[0]
		s.queue = s.queue[1:]
		return v, nil
	}
	return s.next, nil
}

func (s *fakeStream) Flush() int {
	n := len(s.queue)
	s.queue = nil
	s.flushes++
	return n
}

func TestAcquireWindow_StreamDiscardsQueued(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	loud := make([]uint16, 4096)
	for i := range loud {
		if i%2 == 1 {
			loud[i] = 4095
		}
	}
	src := &fakeStream{clock: clock, cost: 200 * time.Microsecond, queue: loud, next: 2048}
	s := New(src, clock, testOpts)

	w, err := s.AcquireWindow(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, 1, src.flushes)
	assert.Equal(t, 2048.0, w.Baseline)
	assert.Equal(t, 0.0, w.SumSquares)
	assert.Equal(t, 2048.0, w.Mean())
	// The device paces the reads
	assert.Equal(t, 0, clock.sleeps)
	assert.Equal(t, 84, w.Count)

	src.queue = []uint16{0, 4095}
	_, err = s.AcquireWindow(context.Background(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 2, src.flushes)
}

func TestNew_StreamDisablesPacing(t *testing.T) {
	s := New(&fakeStream{clock: &fakeClock{}}, nil, testOpts)
	assert.Equal(t, time.Duration(0), s.opts.SamplePeriod)
	assert.Equal(t, time.Duration(0), s.opts.BaselineSpacing)
	assert.Equal(t, 16, s.opts.BaselineSamples)

	s = New(&fakeSource{fn: constant(0)}, nil, testOpts)
	assert.Equal(t, 200*time.Microsecond, s.opts.SamplePeriod)
}
