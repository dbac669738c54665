package ui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	ColorSuccess = lipgloss.Color("#14F195") // solana green
	ColorError   = lipgloss.Color("#FF4444")
	ColorAddress = lipgloss.Color("#00B4D8")
	ColorMeta    = lipgloss.Color("#555555")
	ColorBrand   = lipgloss.Color("#9945FF") // solana purple
	ColorBorder  = lipgloss.Color("#1E3A5F")
)

var (
	StyleTitle   = lipgloss.NewStyle().Foreground(ColorBrand).Bold(true).MarginBottom(1)
	StyleAddress = lipgloss.NewStyle().Foreground(ColorAddress)
	StyleMeta    = lipgloss.NewStyle().Foreground(ColorMeta)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError).Bold(true)
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)

	StyleButton = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(ColorBrand).
			Bold(true).
			Padding(0, 2)

	StyleButtonDisabled = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#AAAAAA")).
				Background(ColorMeta).
				Padding(0, 2)

	StyleResult = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)
)
