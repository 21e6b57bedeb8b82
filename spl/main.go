package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gospl/pkg/config"
	"github.com/itohio/gospl/pkg/console"
	"github.com/itohio/gospl/pkg/gauge"
	"github.com/itohio/gospl/pkg/meter"
	"github.com/itohio/gospl/pkg/session"
)

// updateInterval throttles gauge refreshes (~60 FPS).
const updateInterval = 16 * time.Millisecond

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		sourceFlag = flag.String("source", "", "Microphone source override (mock, serial, ads1115)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *sourceFlag != "" {
		cfg.Source = *sourceFlag
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid source: %v", err)
		}
	}

	application := app.NewWithID("com.itohio.gospl")

	window := application.NewWindow("Sound Level Meter")
	window.Resize(fyne.NewSize(1000, 720))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		window:     window,
		gauge:      gauge.New(cfg.Display),
		console:    newConsoleView(),
	}

	toolbar := createToolbar(state)
	input := createCommandEntry(state)

	split := container.NewVSplit(
		state.gauge,
		container.NewBorder(nil, input, nil, nil, state.console.Object()),
	)
	split.Offset = 0.65

	window.SetContent(container.NewBorder(toolbar, nil, nil, nil, split))
	window.SetOnClosed(func() {
		state.disconnect()
	})
	window.ShowAndRun()
}

// run tracks a running session for shutdown.
type run struct {
	session *session.Session
	lines   chan string
	cancel  context.CancelFunc
	done    chan struct{}
}

// appState holds the application state.
type appState struct {
	cfg        *config.Config
	configPath string
	window     fyne.Window
	gauge      *gauge.Gauge
	console    *consoleView
	connectBtn *widget.Button
	cmdBtns    []*widget.Button

	current *run // nil when disconnected

	lastUpdate time.Time
	updateMu   sync.Mutex
}

// createToolbar creates the toolbar: connect and settings on the left,
// calibration commands on the right.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	state.connectBtn = connectBtn

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	cmdBox := createCommandButtons(state)

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(connectBtn, settingsBtn),
		cmdBox,
		nil,
	)
}

// createCommandEntry creates the operator input line.
func createCommandEntry(state *appState) fyne.CanvasObject {
	entry := widget.NewEntry()
	entry.SetPlaceHolder("Command (c, s, r, p) or reference SPL")
	entry.OnSubmitted = func(text string) {
		state.console.Echo(text)
		state.send(text)
		entry.SetText("")
	}
	return entry
}

// handleConnect toggles the measurement session.
func handleConnect(state *appState) {
	if state.current != nil {
		state.disconnect()
		fmt.Println("Disconnected")
		return
	}

	s, err := session.Open(state.cfg, state.console, console.WithAnnouncer(state))
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	fmt.Printf("Connected to %s source\n", state.cfg.Source)

	s.Meter.OnUpdate(func(r meter.Reading) {
		state.updateMu.Lock()
		now := time.Now()
		if now.Sub(state.lastUpdate) < updateInterval {
			state.updateMu.Unlock()
			return
		}
		state.lastUpdate = now
		state.updateMu.Unlock()

		state.gauge.Render(r)
	})

	ctx, cancel := context.WithCancel(context.Background())
	current := &run{
		session: s,
		lines:   make(chan string, console.DefaultLineBuffer),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	state.current = current
	state.gauge.Reset()
	setCommandsEnabled(state, true)

	go func() {
		defer close(current.done)
		if err := s.Run(ctx, current.lines); err != nil {
			log.Printf("Meter stopped: %v", err)
			fyne.Do(func() {
				dialog.ShowError(err, state.window)
			})
		}
	}()
}

// disconnect stops the running session and waits for it to finish.
func (state *appState) disconnect() {
	current := state.current
	if current == nil {
		return
	}
	state.current = nil

	current.cancel()
	<-current.done
	if err := current.session.Close(); err != nil {
		log.Printf("Failed to close session: %v", err)
	}
	setCommandsEnabled(state, false)
}

// send queues an operator line for the engine.
func (state *appState) send(line string) {
	if state.current == nil {
		state.console.Write([]byte("[ERR] Not connected.\n"))
		return
	}
	select {
	case state.current.lines <- line:
	default:
		log.Printf("Command queue full, dropping %q", line)
	}
}

// Announce shows calibration results in a dialog.
func (state *appState) Announce(title, detail string) {
	fyne.Do(func() {
		dialog.ShowInformation(title, detail, state.window)
	})
}
