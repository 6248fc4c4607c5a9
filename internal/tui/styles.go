package tui

import "github.com/charmbracelet/lipgloss"

// Styles.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("4"))
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("8"))
	panelTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	activeTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	expiryStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	cursorStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	selectedStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	gainStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	errorStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1"))
	axisStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Heatmap ramps, weakest first.
var (
	gainRamp = []lipgloss.Color{"22", "28", "34", "40", "46"}
	lossRamp = []lipgloss.Color{"52", "88", "124", "160", "196"}
	flatCell = lipgloss.Color("238")
)

// cellColor picks the background of a P/L cell. Gains are scaled against the
// largest gain and losses against the largest loss.
func cellColor(v, lo, hi float64) lipgloss.Color {
	switch {
	case v > 0 && hi > 0:
		return rampColor(gainRamp, v/hi)
	case v < 0 && lo < 0:
		return rampColor(lossRamp, v/lo)
	default:
		return flatCell
	}
}

func rampColor(ramp []lipgloss.Color, ratio float64) lipgloss.Color {
	ratio = min(max(ratio, 0), 1)
	idx := int(ratio*float64(len(ramp)-1) + 0.5)
	return ramp[idx]
}
