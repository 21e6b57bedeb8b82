package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/gospl/pkg/config"
	"github.com/itohio/gospl/pkg/mic"
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
// Changes are saved immediately and take effect on the next connect.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSourceTab(state),
		createADCTab(state),
		createSamplingTab(state),
		createCalibrationTab(state),
		createDisplayTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// saveConfig validates and persists the configuration. An invalid edit is
// rolled back to prev.
func saveConfig(state *appState, prev config.Config) {
	if err := state.cfg.Validate(); err != nil {
		*state.cfg = prev
		dialog.ShowError(err, state.window)
		return
	}
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return
	}
	if state.current != nil {
		dialog.ShowInformation("Settings", "Saved. Reconnect to apply.", state.window)
	}
}

func floatEntry(v float64, prec int) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(strconv.FormatFloat(v, 'f', prec, 64))
	return e
}

func intEntry(v int) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(strconv.Itoa(v))
	return e
}

func durationEntry(d time.Duration) *widget.Entry {
	e := widget.NewEntry()
	e.SetText(d.String())
	return e
}

func setFloat(dst *float64, e *widget.Entry) {
	if v, err := strconv.ParseFloat(e.Text, 64); err == nil {
		*dst = v
	}
}

func setInt(dst *int, e *widget.Entry) {
	if v, err := strconv.Atoi(e.Text); err == nil {
		*dst = v
	}
}

func setDuration(dst *time.Duration, e *widget.Entry) {
	if v, err := time.ParseDuration(e.Text); err == nil {
		*dst = v
	}
}

// createSourceTab creates the microphone source tab.
func createSourceTab(state *appState) *container.TabItem {
	sourceSelect := widget.NewSelect([]string{config.SourceMock, config.SourceSerial, config.SourceADS}, nil)
	sourceSelect.SetSelected(state.cfg.Source)

	ports, err := mic.Ports()
	portOptions := []string{}
	portMap := make(map[string]string) // display name -> port name
	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}

	currentPort := state.cfg.Serial.Port
	currentDisplay := currentPort
	found := false
	for _, opt := range portOptions {
		if portMap[opt] == currentPort {
			currentDisplay = opt
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
		portMap[currentPort] = currentPort
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentDisplay != "" {
		portSelect.SetSelected(currentDisplay)
	}
	baudEntry := intEntry(state.cfg.Serial.BaudRate)

	adsBusEntry := widget.NewEntry()
	adsBusEntry.SetText(state.cfg.ADS.Bus)
	adsChannelEntry := intEntry(state.cfg.ADS.Channel)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Source", Widget: sourceSelect},
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
			{Text: "ADS1115 I2C Bus", Widget: adsBusEntry},
			{Text: "ADS1115 Channel", Widget: adsChannelEntry},
		},
		OnSubmit: func() {
			prev := *state.cfg
			if sourceSelect.Selected != "" {
				state.cfg.Source = sourceSelect.Selected
			}
			if portSelect.Selected != "" {
				port := portMap[portSelect.Selected]
				if port == "" {
					port = portSelect.Selected
				}
				state.cfg.Serial.Port = port
			}
			setInt(&state.cfg.Serial.BaudRate, baudEntry)
			state.cfg.ADS.Bus = adsBusEntry.Text
			setInt(&state.cfg.ADS.Channel, adsChannelEntry)
			saveConfig(state, prev)
		},
	}

	return container.NewTabItem("Source", form)
}

// createADCTab creates the converter tab.
func createADCTab(state *appState) *container.TabItem {
	vrefEntry := floatEntry(state.cfg.ADC.VRef, 3)
	resolutionEntry := intEntry(state.cfg.ADC.Resolution)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "VRef (V)", Widget: vrefEntry},
			{Text: "Resolution (bits)", Widget: resolutionEntry},
		},
		OnSubmit: func() {
			prev := *state.cfg
			setFloat(&state.cfg.ADC.VRef, vrefEntry)
			setInt(&state.cfg.ADC.Resolution, resolutionEntry)
			saveConfig(state, prev)
		},
	}

	return container.NewTabItem("ADC", form)
}

// createSamplingTab creates the sampling tab.
func createSamplingTab(state *appState) *container.TabItem {
	rateEntry := intEntry(state.cfg.Sampling.SampleRate)
	windowEntry := durationEntry(state.cfg.Sampling.Window)
	baselineEntry := intEntry(state.cfg.Sampling.BaselineSamples)
	delayEntry := durationEntry(state.cfg.Sampling.CycleDelay)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Sample Rate (Hz)", Widget: rateEntry},
			{Text: "Window", Widget: windowEntry},
			{Text: "Baseline Samples", Widget: baselineEntry},
			{Text: "Cycle Delay", Widget: delayEntry},
		},
		OnSubmit: func() {
			prev := *state.cfg
			setInt(&state.cfg.Sampling.SampleRate, rateEntry)
			setDuration(&state.cfg.Sampling.Window, windowEntry)
			setInt(&state.cfg.Sampling.BaselineSamples, baselineEntry)
			setDuration(&state.cfg.Sampling.CycleDelay, delayEntry)
			saveConfig(state, prev)
		},
	}

	return container.NewTabItem("Sampling", form)
}

// createCalibrationTab creates the calibration tab.
func createCalibrationTab(state *appState) *container.TabItem {
	pathEntry := widget.NewEntry()
	pathEntry.SetText(state.cfg.Calibration.Path)
	passesEntry := intEntry(state.cfg.Calibration.Passes)
	passWindowEntry := durationEntry(state.cfg.Calibration.PassWindow)
	timeoutEntry := durationEntry(state.cfg.Calibration.ReferenceTimeout)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Storage File", Widget: pathEntry},
			{Text: "Passes", Widget: passesEntry},
			{Text: "Pass Window", Widget: passWindowEntry},
			{Text: "Reference Timeout (0 = none)", Widget: timeoutEntry},
		},
		OnSubmit: func() {
			prev := *state.cfg
			if pathEntry.Text != "" {
				state.cfg.Calibration.Path = pathEntry.Text
			}
			setInt(&state.cfg.Calibration.Passes, passesEntry)
			setDuration(&state.cfg.Calibration.PassWindow, passWindowEntry)
			setDuration(&state.cfg.Calibration.ReferenceTimeout, timeoutEntry)
			saveConfig(state, prev)
		},
	}

	return container.NewTabItem("Calibration", form)
}

// createDisplayTab creates the level display tab.
func createDisplayTab(state *appState) *container.TabItem {
	minSPLEntry := floatEntry(state.cfg.Display.MinSPL, 1)
	maxSPLEntry := floatEntry(state.cfg.Display.MaxSPL, 1)
	minDBFSEntry := floatEntry(state.cfg.Display.MinDBFS, 1)
	maxDBFSEntry := floatEntry(state.cfg.Display.MaxDBFS, 1)
	loudEntry := floatEntry(state.cfg.Display.LoudThreshold, 1)
	peakEntry := durationEntry(state.cfg.Display.PeakHold)
	historyEntry := durationEntry(state.cfg.Display.History)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Min SPL (dB)", Widget: minSPLEntry},
			{Text: "Max SPL (dB)", Widget: maxSPLEntry},
			{Text: "Min dBFS", Widget: minDBFSEntry},
			{Text: "Max dBFS", Widget: maxDBFSEntry},
			{Text: "Loud Threshold (dB)", Widget: loudEntry},
			{Text: "Peak Hold", Widget: peakEntry},
			{Text: "History", Widget: historyEntry},
		},
		OnSubmit: func() {
			prev := *state.cfg
			setFloat(&state.cfg.Display.MinSPL, minSPLEntry)
			setFloat(&state.cfg.Display.MaxSPL, maxSPLEntry)
			setFloat(&state.cfg.Display.MinDBFS, minDBFSEntry)
			setFloat(&state.cfg.Display.MaxDBFS, maxDBFSEntry)
			setFloat(&state.cfg.Display.LoudThreshold, loudEntry)
			setDuration(&state.cfg.Display.PeakHold, peakEntry)
			setDuration(&state.cfg.Display.History, historyEntry)
			saveConfig(state, prev)
		},
	}

	return container.NewTabItem("Display", form)
}

// createMockTab creates the mocked microphone tab.
func createMockTab(state *appState) *container.TabItem {
	biasEntry := floatEntry(state.cfg.Mock.Bias, 1)
	amplitudeEntry := floatEntry(state.cfg.Mock.Amplitude, 1)
	frequencyEntry := floatEntry(state.cfg.Mock.Frequency, 1)
	noiseEntry := floatEntry(state.cfg.Mock.NoiseLevel, 2)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Bias (counts)", Widget: biasEntry},
			{Text: "Amplitude (counts)", Widget: amplitudeEntry},
			{Text: "Frequency (Hz)", Widget: frequencyEntry},
			{Text: "Noise Level (counts)", Widget: noiseEntry},
		},
		OnSubmit: func() {
			prev := *state.cfg
			setFloat(&state.cfg.Mock.Bias, biasEntry)
			setFloat(&state.cfg.Mock.Amplitude, amplitudeEntry)
			setFloat(&state.cfg.Mock.Frequency, frequencyEntry)
			setFloat(&state.cfg.Mock.NoiseLevel, noiseEntry)
			saveConfig(state, prev)
		},
	}

	return container.NewTabItem("Mock", form)
}
