//go:build headless

package frontend

import "errors"

// ErrNoDisplay is returned by Run in builds without a window system.
var ErrNoDisplay = errors.New("built without display support")

// Window is unavailable in headless builds.
type Window struct{}

// NewWindow creates a window placeholder.
func NewWindow(Machine, int, string) *Window {
	return &Window{}
}

// Run always fails with ErrNoDisplay.
func (w *Window) Run() error {
	return ErrNoDisplay
}
