package gauge

import (
	"fmt"
	"image/color"
	"math"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/itohio/gospl/pkg/meter"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	traceColor = color.RGBA{R: 255, G: 165, B: 0, A: 255}
	quietColor = color.RGBA{R: 80, G: 200, B: 120, A: 255}
	loudColor  = color.RGBA{R: 230, G: 60, B: 60, A: 255}
	peakColor  = color.RGBA{R: 100, G: 200, B: 255, A: 255}
	frameColor = color.RGBA{R: 200, G: 200, B: 200, A: 255}
)

type gaugeRenderer struct {
	gauge *Gauge

	bg      *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

func (r *gaugeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

func (r *gaugeRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.gauge.BaseWidget.Refresh()
	}
}

func (r *gaugeRenderer) Refresh() {
	g := r.gauge
	g.mu.RLock()
	trace := g.trace
	last := g.last
	seen := g.seen
	yMin, yMax := g.yMin, g.yMax
	xMin, xMax := g.xMin, g.xMax
	g.mu.RUnlock()

	size := g.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.bg}

	// value readout on top, bar on the right, trace fills the rest
	const (
		marginLeft   = float32(50)
		marginTop    = float32(70)
		marginBottom = float32(30)
		barWidth     = float32(28)
		barGap       = float32(20)
	)
	plotX := marginLeft
	plotY := marginTop
	plotW := size.Width - marginLeft - barWidth - 2*barGap
	plotH := size.Height - marginTop - marginBottom
	if plotW <= 0 || plotH <= 0 {
		return
	}

	r.drawReadout(last, seen)
	r.drawGrid(plotX, plotY, plotW, plotH, yMin, yMax, xMin, xMax)
	r.drawTrace(plotX, plotY, plotW, plotH, trace, yMin, yMax, xMin, xMax)
	r.drawBar(plotX+plotW+barGap, plotY, barWidth, plotH, last, yMin, yMax)
}

func (r *gaugeRenderer) drawReadout(last meter.Reading, seen bool) {
	value := "--- dB"
	unit := "dBFS"
	if seen && last.Calibrated {
		value = fmt.Sprintf("%.1f dB", last.SPL)
		unit = "SPL"
	} else if seen {
		value = fmt.Sprintf("%.1f dBFS", last.DBFS)
	}

	big := canvas.NewText(value, levelColor(last))
	big.TextSize = 36
	big.TextStyle = fyne.TextStyle{Bold: true, Monospace: true}
	big.Move(fyne.NewPos(12, 8))
	r.objects = append(r.objects, big)

	detail := "not calibrated"
	if seen {
		detail = fmt.Sprintf("%s  Vrms %.6f V  peak %s  %s", unit, last.VRMS, formatLevel(peakOf(last)), last.Loudness)
		if !last.HasSignal() {
			detail += "  (no signal)"
		}
	}
	small := canvas.NewText(detail, labelColor)
	small.TextSize = 12
	small.Move(fyne.NewPos(14, 50))
	r.objects = append(r.objects, small)
}

func (r *gaugeRenderer) drawGrid(plotX, plotY, plotW, plotH float32, yMin, yMax float64, xMin, xMax time.Time) {
	const hLines = 6
	for i := range hLines + 1 {
		y := plotY + float32(i)*plotH/hLines
		r.line(gridColor, 1, plotX, y, plotX+plotW, y)

		value := yMax - float64(i)*(yMax-yMin)/hLines
		text := canvas.NewText(formatLevel(value), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(plotX-5, y-6))
		r.objects = append(r.objects, text)
	}

	const vLines = 6
	span := xMax.Sub(xMin)
	for i := range vLines + 1 {
		x := plotX + float32(i)*plotW/vLines
		r.line(gridColor, 1, x, plotY, x, plotY+plotH)

		offset := time.Duration(float64(span) * float64(i) / vLines)
		text := canvas.NewText(fmt.Sprintf("%.0fs", offset.Seconds()), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-10, plotY+plotH+5))
		r.objects = append(r.objects, text)
	}
}

func (r *gaugeRenderer) drawTrace(plotX, plotY, plotW, plotH float32, trace []Point, yMin, yMax float64, xMin, xMax time.Time) {
	if len(trace) < 2 {
		return
	}
	span := xMax.Sub(xMin).Seconds()
	if span <= 0 {
		return
	}

	prev := fyne.Position{}
	for i, p := range trace {
		x := plotX + float32(p.Timestamp.Sub(xMin).Seconds()/span)*plotW
		y := plotY + plotH - float32(meter.Normalize(p.Value, yMin, yMax))*plotH
		pos := fyne.NewPos(x, y)
		if i > 0 {
			r.line(traceColor, 1.5, prev.X, prev.Y, pos.X, pos.Y)
		}
		prev = pos
	}
}

func (r *gaugeRenderer) drawBar(x, y, w, h float32, last meter.Reading, yMin, yMax float64) {
	frame := canvas.NewRectangle(color.Transparent)
	frame.StrokeColor = frameColor
	frame.StrokeWidth = 1
	frame.CornerRadius = 3
	frame.Move(fyne.NewPos(x, y))
	frame.Resize(fyne.NewSize(w, h))
	r.objects = append(r.objects, frame)

	if fill := float32(last.Fraction) * h; fill > 0 {
		bar := canvas.NewRectangle(levelColor(last))
		bar.Move(fyne.NewPos(x+2, y+h-fill))
		bar.Resize(fyne.NewSize(w-4, fill))
		r.objects = append(r.objects, bar)
	}

	peak := peakOf(last)
	if !math.IsInf(peak, 0) && last.HasSignal() {
		py := y + h - float32(meter.Normalize(peak, yMin, yMax))*h
		r.line(peakColor, 2, x, py, x+w, py)
	}
}

func (r *gaugeRenderer) line(c color.Color, width, x1, y1, x2, y2 float32) {
	l := canvas.NewLine(c)
	l.Position1 = fyne.NewPos(x1, y1)
	l.Position2 = fyne.NewPos(x2, y2)
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *gaugeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *gaugeRenderer) Destroy() {}

func peakOf(r meter.Reading) float64 {
	if r.Calibrated {
		return r.PeakSPL
	}
	return r.PeakDBFS
}

func levelColor(r meter.Reading) color.Color {
	if r.Loudness == meter.LoudnessLoud {
		return loudColor
	}
	return quietColor
}

func formatLevel(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "---"
	}
	return fmt.Sprintf("%.0f", v)
}
