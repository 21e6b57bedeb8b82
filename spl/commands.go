package main

import (
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// command is a toolbar shortcut for an interpreter command.
type command struct {
	line string
	icon fyne.Resource
}

var commands = []command{
	{line: "c", icon: theme.MediaRecordIcon()},
	{line: "s", icon: theme.DocumentSaveIcon()},
	{line: "r", icon: theme.DeleteIcon()},
	{line: "p", icon: theme.InfoIcon()},
}

// createCommandButtons creates disabled buttons that send interpreter commands.
func createCommandButtons(state *appState) fyne.CanvasObject {
	box := container.NewHBox()
	for _, cmd := range commands {
		btn := widget.NewButtonWithIcon(cmd.line, cmd.icon, func() {
			handleCommand(state, cmd.line)
		})
		btn.Disable()
		state.cmdBtns = append(state.cmdBtns, btn)
		box.Add(btn)
	}
	return box
}

// handleCommand echoes and sends a command line.
func handleCommand(state *appState, line string) {
	if state.current == nil {
		return
	}
	state.console.Echo(line)
	state.send(line)
}

// setCommandsEnabled updates the command buttons after connect or disconnect.
func setCommandsEnabled(state *appState, enabled bool) {
	for _, btn := range state.cmdBtns {
		if enabled {
			btn.Enable()
		} else {
			btn.Disable()
		}
	}
	if enabled {
		state.connectBtn.Importance = widget.HighImportance
	} else {
		state.connectBtn.Importance = widget.MediumImportance
	}
	state.connectBtn.Refresh()
}
