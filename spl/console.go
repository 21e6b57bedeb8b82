package main

import (
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

const maxConsoleLines = 400

// consoleView is the operator transcript. Write is safe from any goroutine;
// widget updates are scheduled on the main thread.
type consoleView struct {
	label  *widget.Label
	scroll *container.Scroll

	mu      sync.Mutex
	lines   []string
	partial string
	pending bool
}

func newConsoleView() *consoleView {
	label := widget.NewLabel("")
	label.TextStyle = fyne.TextStyle{Monospace: true}
	label.Wrapping = fyne.TextWrapWord
	return &consoleView{
		label:  label,
		scroll: container.NewVScroll(label),
	}
}

// Object returns the canvas object to place in the window.
func (c *consoleView) Object() fyne.CanvasObject {
	return c.scroll
}

// Echo records an operator input line.
func (c *consoleView) Echo(line string) {
	c.Write([]byte("> " + line + "\n"))
}

// Write appends protocol text. Complete lines are shown; the last
// unterminated fragment is held until its newline arrives.
func (c *consoleView) Write(p []byte) (int, error) {
	c.mu.Lock()
	text := c.partial + string(p)
	parts := strings.Split(text, "\n")
	c.partial = parts[len(parts)-1]
	c.lines = append(c.lines, parts[:len(parts)-1]...)
	if n := len(c.lines) - maxConsoleLines; n > 0 {
		c.lines = append(c.lines[:0], c.lines[n:]...)
	}
	schedule := !c.pending
	c.pending = true
	c.mu.Unlock()

	if schedule {
		fyne.Do(c.flush)
	}
	return len(p), nil
}

// text returns the visible transcript.
func (c *consoleView) text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = false
	return strings.Join(c.lines, "\n")
}

func (c *consoleView) flush() {
	c.label.SetText(c.text())
	c.scroll.ScrollToBottom()
}
