package overlay

import "github.com/charmbracelet/lipgloss"

// Colors used by the overlay.
var (
	colorAccent = lipgloss.Color("#00AFFF")
	colorGreen  = lipgloss.Color("#5FD75F")
	colorYellow = lipgloss.Color("#FFD75F")
	colorRed    = lipgloss.Color("#FF5F5F")
	colorGray   = lipgloss.Color("#767676")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	onlineDotStyle = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	offlineDotStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	noticeStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)
)
