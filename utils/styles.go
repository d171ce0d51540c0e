package utils

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	CriticalColor  = lipgloss.Color("#CC3333") // Dark red
	WarningColor   = lipgloss.Color("#FF8800") // Orange
	GoodColor      = lipgloss.Color("#228B22") // Forest green
	InfoColor      = lipgloss.Color("#4682B4") // Steel blue
	InfoLightColor = lipgloss.Color("#88AACC") // Lighter blue
	TextColor      = lipgloss.Color("#CCCCCC") // Light gray
	MutedColor     = lipgloss.Color("#888888") // Medium gray
	BorderColor    = lipgloss.Color("#666666") // Dark gray
)

var (
	CriticalStyle  = lipgloss.NewStyle().Foreground(CriticalColor).Bold(true)
	WarningStyle   = lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
	GoodStyle      = lipgloss.NewStyle().Foreground(GoodColor).Bold(true)
	InfoStyle      = lipgloss.NewStyle().Foreground(InfoColor)
	InfoLightStyle = lipgloss.NewStyle().Foreground(InfoLightColor)
	MutedStyle     = lipgloss.NewStyle().Foreground(MutedColor)
	BoldStyle      = lipgloss.NewStyle().Foreground(TextColor).Bold(true)
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			Background(lipgloss.Color("#1a1a1a")).
			Bold(true).
			Padding(0, 1)

	SelectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#2a3a4a"))

	ErrorStyle = lipgloss.NewStyle().
			Foreground(CriticalColor).
			Background(lipgloss.Color("#1a1a1a")).
			Bold(true).
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(CriticalColor)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(1, 2)
)

// CreateProgressBar renders percentage (0..1) as a bar of width cells
func CreateProgressBar(percentage float64, width int, color lipgloss.Color) string {
	if width < 4 {
		return fmt.Sprintf("%.0f%%", percentage*100)
	}

	filled := int(math.Round(percentage * float64(width)))
	filled = min(max(filled, 0), width)

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	if color != "" {
		bar = lipgloss.NewStyle().Foreground(color).Render(bar)
	}
	return bar
}

// TruncateString cuts s to maxWidth runes, marking the cut with "..."
func TruncateString(s string, maxWidth int) string {
	runes := []rune(s)
	if len(runes) <= maxWidth {
		return s
	}
	if maxWidth < 4 {
		return strings.Repeat(".", max(maxWidth, 0))
	}
	return string(runes[:maxWidth-3]) + "..."
}

// SanitizeString replaces control characters so heap strings display on one line
func SanitizeString(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 32 || r == 127:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
