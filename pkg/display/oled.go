package display

import (
	"fmt"
	"image"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/itohio/gospl/pkg/config"
	"github.com/itohio/gospl/pkg/meter"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

// OLED geometry.
const (
	OLEDWidth  = 128
	OLEDHeight = 64
)

// Screen timings.
const (
	AnnounceHold = 1400 * time.Millisecond
	SplashHold   = 2 * time.Second
	FlashOn      = 250 * time.Millisecond
	FlashOff     = 120 * time.Millisecond
	HintHold     = 900 * time.Millisecond
)

// Bar geometry.
const (
	barX = 6
	barY = 52
	barW = 116
	barH = 8
)

// screen is the part of ssd1306.Dev the OLED sink draws on.
type screen interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Halt() error
}

var (
	_ screen    = (*ssd1306.Dev)(nil)
	_ Sink      = (*OLED)(nil)
	_ Announcer = (*OLED)(nil)
)

// addressBus sends every transaction to addr. ssd1306.NewI2C always talks to
// 0x3C; this lets a module strapped to 0x3D be driven too.
type addressBus struct {
	i2c.Bus
	addr uint16
}

func (b *addressBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}

// OLED renders readings on a 128x64 SSD1306.
type OLED struct {
	screen screen
	bus    i2c.BusCloser
	addr   uint16

	now   func() time.Time
	sleep func(time.Duration)

	mu        sync.Mutex
	holdUntil time.Time
}

// OpenOLED initializes the host drivers and probes cfg.Addresses in order.
// Failing every address is fatal for the caller; there is no retry.
func OpenOLED(cfg config.OLEDConfig) (*OLED, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("no OLED addresses configured")
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}

	var lastErr error
	for i, addr := range cfg.Addresses {
		dev, err := ssd1306.NewI2C(&addressBus{Bus: bus, addr: addr}, &ssd1306.DefaultOpts)
		if err == nil {
			log.Printf("[INFO] OLED initialized at 0x%02X", addr)
			o := newOLED(dev)
			o.bus = bus
			o.addr = addr
			return o, nil
		}
		lastErr = err
		if i+1 < len(cfg.Addresses) {
			log.Printf("[WARN] OLED not found at 0x%02X, trying 0x%02X...", addr, cfg.Addresses[i+1])
		}
	}

	bus.Close()
	return nil, fmt.Errorf("OLED not found at %s: %w", formatAddresses(cfg.Addresses), lastErr)
}

func newOLED(s screen) *OLED {
	return &OLED{
		screen: s,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Address returns the I2C address the display answered on.
func (o *OLED) Address() uint16 {
	return o.addr
}

// Splash shows the greeting, a full-screen flash test and the operator hint.
// It blocks for the duration of the sequence.
func (o *OLED) Splash() error {
	img := blank()
	face := inconsolata.Bold8x16
	w := font.MeasureString(face, "Hi").Ceil()
	drawText(img, face, (OLEDWidth-w)/2, (OLEDHeight+face.Ascent)/2, "Hi")
	if err := o.show(img); err != nil {
		return err
	}
	o.sleep(SplashHold)

	full := blank()
	fillRect(full, image.Rect(0, 0, OLEDWidth, OLEDHeight))
	if err := o.show(full); err != nil {
		return err
	}
	o.sleep(FlashOn)
	if err := o.show(blank()); err != nil {
		return err
	}
	o.sleep(FlashOff)

	hint := blank()
	drawText(hint, basicfont.Face7x13, 6, 28, "Open the console")
	drawText(hint, basicfont.Face7x13, 6, 44, "'c' to calibrate")
	if err := o.show(hint); err != nil {
		return err
	}
	o.sleep(HintHold)
	return nil
}

// Render draws r unless an announcement is still on screen.
func (o *OLED) Render(r meter.Reading) error {
	o.mu.Lock()
	hold := o.holdUntil
	o.mu.Unlock()
	if o.now().Before(hold) {
		return nil
	}
	return o.show(drawFrame(r))
}

// Announce shows a two-line message for AnnounceHold.
func (o *OLED) Announce(title, detail string) {
	img := blank()
	drawText(img, basicfont.Face7x13, 6, 19, title)
	drawText(img, basicfont.Face7x13, 6, 39, detail)
	if err := o.show(img); err != nil {
		log.Printf("Failed to show announcement: %v", err)
		return
	}

	o.mu.Lock()
	o.holdUntil = o.now().Add(AnnounceHold)
	o.mu.Unlock()
}

// Close turns the panel off and releases the bus.
func (o *OLED) Close() error {
	err := o.screen.Halt()
	if o.bus != nil {
		if cerr := o.bus.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close OLED: %w", err)
	}
	return nil
}

func (o *OLED) show(img *image1bit.VerticalLSB) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.screen.Draw(o.screen.Bounds(), img, image.Point{}); err != nil {
		return fmt.Errorf("failed to draw OLED frame: %w", err)
	}
	return nil
}

// drawFrame lays out the meter screen: title, SPL, dBFS and the level bar.
func drawFrame(r meter.Reading) *image1bit.VerticalLSB {
	img := blank()

	drawText(img, basicfont.Face7x13, 6, 11, "dB METER (approx)")

	big := "--- dB"
	if r.Calibrated {
		big = fmt.Sprintf("%d dB", int(math.Round(r.SPL)))
		drawText(img, basicfont.Face7x13, 80, 30, fmt.Sprintf("pk %d", int(math.Round(r.PeakSPL))))
	}
	drawText(img, inconsolata.Bold8x16, 6, 30, big)

	drawText(img, basicfont.Face7x13, 6, 46, "dBFS:")
	drawText(img, basicfont.Face7x13, 48, 46, fmt.Sprintf("%.1f", r.DBFS))

	roundRect(img, image.Rect(barX-1, barY-1, barX+barW+1, barY+barH+1))
	if fill := int(r.Fraction * barW); fill > 0 {
		fillRect(img, image.Rect(barX, barY, barX+fill, barY+barH))
	}
	return img
}

func blank() *image1bit.VerticalLSB {
	return image1bit.NewVerticalLSB(image.Rect(0, 0, OLEDWidth, OLEDHeight))
}

func drawText(img *image1bit.VerticalLSB, face font.Face, x, y int, s string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func fillRect(img *image1bit.VerticalLSB, r image.Rectangle) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetBit(x, y, image1bit.On)
		}
	}
}

// roundRect outlines r leaving its corner pixels dark.
func roundRect(img *image1bit.VerticalLSB, r image.Rectangle) {
	for x := r.Min.X + 1; x < r.Max.X-1; x++ {
		img.SetBit(x, r.Min.Y, image1bit.On)
		img.SetBit(x, r.Max.Y-1, image1bit.On)
	}
	for y := r.Min.Y + 1; y < r.Max.Y-1; y++ {
		img.SetBit(r.Min.X, y, image1bit.On)
		img.SetBit(r.Max.X-1, y, image1bit.On)
	}
}

func formatAddresses(addrs []uint16) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = fmt.Sprintf("0x%02X", a)
	}
	return strings.Join(parts, ", ")
}
