// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the zone player
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// NewModel creates a new TUI model
func NewModel(ctrl Controller) Model {
	return Model{ctrl: ctrl}
}

// Run creates the TUI program; the caller starts it
func Run(ctrl Controller) *tea.Program {
	return tea.NewProgram(NewModel(ctrl), tea.WithAltScreen())
}
