package ui

import "github.com/charmbracelet/lipgloss"

var (
	colorBase    = lipgloss.Color("#1e1e2e")
	colorMantle  = lipgloss.Color("#181825")
	colorSurface = lipgloss.Color("#45475a")
	colorText    = lipgloss.Color("#cdd6f4")
	colorSubtext = lipgloss.Color("#a6adc8")
	colorBlue    = lipgloss.Color("#74c7ec")
	colorGreen   = lipgloss.Color("#a6e3a1")
	colorPeach   = lipgloss.Color("#fab387")
	colorRed     = lipgloss.Color("#f38ba8")

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorSurface).
			Foreground(colorText).
			Padding(0, 1)

	modalStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorPeach).
			Background(colorMantle).
			Foreground(colorText).
			Padding(1, 2)

	paletteStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorPeach).
			Background(colorMantle).
			Foreground(colorText).
			Padding(0, 1)

	barStyle = lipgloss.NewStyle().Background(colorBase).Foreground(colorText)

	titleStyle = lipgloss.NewStyle().Foreground(colorBlue).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorSubtext)
	hotStyle   = lipgloss.NewStyle().Foreground(colorPeach).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	errStyle   = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
)
