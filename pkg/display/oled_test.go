package display

import (
	"errors"
	"image"
	"testing"
	"time"

	"github.com/itohio/gospl/pkg/meter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

type fakeScreen struct {
	frames []*image1bit.VerticalLSB
	halted bool
	err    error
}

func (s *fakeScreen) Bounds() image.Rectangle {
	return image.Rect(0, 0, OLEDWidth, OLEDHeight)
}

func (s *fakeScreen) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, src.(*image1bit.VerticalLSB))
	return nil
}

func (s *fakeScreen) Halt() error {
	s.halted = true
	return nil
}

func newTestOLED(s screen) (*OLED, *time.Time, *[]time.Duration) {
	o := newOLED(s)
	now := time.Unix(100, 0)
	var slept []time.Duration
	o.now = func() time.Time { return now }
	o.sleep = func(d time.Duration) { slept = append(slept, d) }
	return o, &now, &slept
}

func lit(img *image1bit.VerticalLSB, r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if img.BitAt(x, y) {
				n++
			}
		}
	}
	return n
}

func TestDrawFrame_Bar(t *testing.T) {
	tests := []struct {
		fraction float64
		fill     int
	}{
		{0, 0},
		{0.5, 58},
		{1, barW},
	}

	for _, tt := range tests {
		img := drawFrame(meter.Reading{Fraction: tt.fraction})
		inner := image.Rect(barX, barY, barX+barW, barY+barH)
		assert.Equal(t, tt.fill*barH, lit(img, inner), "fraction %v", tt.fraction)
	}
}

func TestDrawFrame_RoundedBarFrame(t *testing.T) {
	img := drawFrame(meter.Reading{})

	assert.False(t, bool(img.BitAt(barX-1, barY-1)), "corner stays dark")
	assert.False(t, bool(img.BitAt(barX+barW, barY+barH)), "corner stays dark")
	assert.True(t, bool(img.BitAt(barX, barY-1)))
	assert.True(t, bool(img.BitAt(barX-1, barY)))
	assert.True(t, bool(img.BitAt(barX+barW, barY+barH-1)))
}

func TestDrawFrame_CalibratedShowsPeak(t *testing.T) {
	uncal := drawFrame(meter.Reading{DBFS: -40})
	cal := drawFrame(meter.Reading{DBFS: -40, SPL: 76.7, PeakSPL: 80, Calibrated: true})

	peakArea := image.Rect(80, 18, OLEDWidth, 32)
	assert.Zero(t, lit(uncal, peakArea))
	assert.NotZero(t, lit(cal, peakArea))

	title := image.Rect(0, 0, OLEDWidth, 13)
	assert.Equal(t, lit(uncal, title), lit(cal, title))
}

func TestOLED_RenderAndAnnounce(t *testing.T) {
	s := &fakeScreen{}
	o, now, _ := newTestOLED(s)

	require.NoError(t, o.Render(meter.Reading{}))
	assert.Len(t, s.frames, 1)

	o.Announce("Calibration saved:", "offset = 114.70")
	assert.Len(t, s.frames, 2)

	// held while the announcement is visible
	*now = now.Add(time.Second)
	require.NoError(t, o.Render(meter.Reading{}))
	assert.Len(t, s.frames, 2)

	*now = now.Add(AnnounceHold)
	require.NoError(t, o.Render(meter.Reading{}))
	assert.Len(t, s.frames, 3)
}

func TestOLED_Splash(t *testing.T) {
	s := &fakeScreen{}
	o, _, slept := newTestOLED(s)

	require.NoError(t, o.Splash())
	require.Len(t, s.frames, 4)
	assert.Equal(t, []time.Duration{SplashHold, FlashOn, FlashOff, HintHold}, *slept)

	full := image.Rect(0, 0, OLEDWidth, OLEDHeight)
	assert.Equal(t, OLEDWidth*OLEDHeight, lit(s.frames[1], full))
	assert.Zero(t, lit(s.frames[2], full))
	assert.NotZero(t, lit(s.frames[0], full))
}

func TestOLED_DrawError(t *testing.T) {
	boom := errors.New("nack")
	s := &fakeScreen{err: boom}
	o, _, slept := newTestOLED(s)

	assert.ErrorIs(t, o.Render(meter.Reading{}), boom)
	assert.ErrorIs(t, o.Splash(), boom)
	assert.Empty(t, *slept)

	// a failed announcement does not block rendering
	o.Announce("x", "y")
	s.err = nil
	require.NoError(t, o.Render(meter.Reading{}))
	assert.Len(t, s.frames, 1)
}

func TestOLED_Close(t *testing.T) {
	s := &fakeScreen{}
	o, _, _ := newTestOLED(s)
	require.NoError(t, o.Close())
	assert.True(t, s.halted)
}

type fakeBus struct {
	addrs []uint16
}

func (b *fakeBus) String() string                    { return "fake" }
func (b *fakeBus) SetSpeed(f physic.Frequency) error { return nil }
func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	b.addrs = append(b.addrs, addr)
	return nil
}

func TestAddressBus(t *testing.T) {
	bus := &fakeBus{}
	ab := &addressBus{Bus: bus, addr: 0x3D}

	require.NoError(t, ab.Tx(0x3C, []byte{0}, nil))
	require.NoError(t, ab.Tx(0x3C, []byte{1}, nil))
	assert.Equal(t, []uint16{0x3D, 0x3D}, bus.addrs)
	assert.Equal(t, "fake", ab.String())
}

func TestFormatAddresses(t *testing.T) {
	assert.Equal(t, "0x3C, 0x3D", formatAddresses([]uint16{0x3C, 0x3D}))
}
