package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/siteray/siteray-agent/models"
)

var (
	accent   = lipgloss.Color("#6366F1") // indigo, matches the spinner
	green    = lipgloss.Color("#22C55E")
	yellow   = lipgloss.Color("#EAB308")
	red      = lipgloss.Color("#EF4444")
	slate    = lipgloss.Color("#94A3B8")
	slateDim = lipgloss.Color("#64748B")
	panelBg  = lipgloss.Color("#111827")
	bgDark   = lipgloss.Color("#0B1220")
	line     = lipgloss.Color("#1F2937")
	ink      = lipgloss.Color("#E5E7EB")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ink).
			Background(bgDark).
			BorderStyle(lipgloss.ThickBorder()).
			BorderLeft(true).
			BorderTop(false).
			BorderRight(false).
			BorderBottom(false).
			BorderForeground(accent).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(line).
			Background(panelBg).
			Padding(1, 2)

	panelHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ink)

	mutedBadgeStyle = lipgloss.NewStyle().
			Foreground(slate).
			Background(bgDark).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(line).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(red)
	dimStyle   = lipgloss.NewStyle().Foreground(slateDim)
)

func riskColor(level models.RiskLevel) lipgloss.Color {
	switch level {
	case models.RiskGreen:
		return green
	case models.RiskYellow:
		return yellow
	case models.RiskRed:
		return red
	default:
		return slate
	}
}

// scoreStyle renders a trust score as a solid pill in the risk color.
func scoreStyle(level models.RiskLevel) lipgloss.Style {
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(bgDark).
		Background(riskColor(level)).
		Padding(0, 2)
}
