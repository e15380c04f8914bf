package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const (
	envNoColor = "NO_COLOR"
	envCI      = "CI"
)

// ConfigureColor selects the lipgloss color profile. Output is plain ASCII
// when plain is set or the environment asks for it.
func ConfigureColor(plain bool) {
	if plain || os.Getenv(envNoColor) != "" || os.Getenv(envCI) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.ColorProfile())
}
