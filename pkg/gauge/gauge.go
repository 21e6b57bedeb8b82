package gauge

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gospl/pkg/config"
	"github.com/itohio/gospl/pkg/meter"
)

const maxDisplayPoints = 600

// Gauge is a Fyne widget showing the current level, a bar with a peak marker
// and a trace of recent levels.
type Gauge struct {
	widget.BaseWidget

	cfg config.DisplayConfig

	// protected by mu
	mu      sync.RWMutex
	history *History
	trace   []Point
	last    meter.Reading
	seen    bool
	yMin    float64
	yMax    float64
	xMin    time.Time
	xMax    time.Time
}

// New creates a gauge scaled by cfg.
func New(cfg config.DisplayConfig) *Gauge {
	g := &Gauge{
		cfg:     cfg,
		history: NewHistory(cfg.History),
		trace:   make([]Point, 0, maxDisplayPoints),
	}
	g.updateScale()
	g.ExtendBaseWidget(g)
	g.Refresh()
	return g
}

// Update adds a reading. Call it on the Fyne main thread (fyne.Do).
func (g *Gauge) Update(r meter.Reading) {
	g.mu.Lock()
	g.history.Push(r)
	g.trace = Downsample(g.trace, g.history.Points(), maxDisplayPoints)
	g.last = r
	g.seen = true
	g.updateScale()
	g.mu.Unlock()

	g.Refresh()
}

// Render adapts the gauge to the display sink interface. It schedules the
// update on the main thread and never fails.
func (g *Gauge) Render(r meter.Reading) error {
	fyne.Do(func() { g.Update(r) })
	return nil
}

// Reset clears the trace and the current reading.
func (g *Gauge) Reset() {
	g.mu.Lock()
	g.history.Reset()
	g.trace = g.trace[:0]
	g.last = meter.Reading{}
	g.seen = false
	g.updateScale()
	g.mu.Unlock()

	g.Refresh()
}

// Last returns the most recent reading and whether one was received.
func (g *Gauge) Last() (meter.Reading, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.last, g.seen
}

// Range returns the vertical scale in the unit of the current reading.
func (g *Gauge) Range() (lo, hi float64) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.yMin, g.yMax
}

// updateScale must be called with mu held.
func (g *Gauge) updateScale() {
	g.yMin, g.yMax = g.cfg.MinDBFS, g.cfg.MaxDBFS
	if g.last.Calibrated {
		g.yMin, g.yMax = g.cfg.MinSPL, g.cfg.MaxSPL
	}

	if len(g.trace) == 0 {
		now := time.Now()
		g.xMin = now
		g.xMax = now.Add(g.cfg.History)
		return
	}
	g.xMin = g.trace[0].Timestamp
	g.xMax = g.trace[len(g.trace)-1].Timestamp
	if g.xMax.Sub(g.xMin) < g.cfg.History {
		g.xMax = g.xMin.Add(g.cfg.History)
	}
}

// CreateRenderer creates the widget renderer.
func (g *Gauge) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &gaugeRenderer{
		gauge:   g,
		bg:      bg,
		objects: []fyne.CanvasObject{bg},
	}
}
