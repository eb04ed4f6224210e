package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Terminal styles for command output. Rendering goes through the
// helpers below so redirected output stays plain text.
var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "42"}).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "130", Dark: "214"}).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "124", Dark: "196"}).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "243", Dark: "245"})

	boldStyle = lipgloss.NewStyle().Bold(true)
)

func renderSuccess(s string) string { return renderTo(os.Stdout, successStyle, s) }
func renderWarn(s string) string    { return renderTo(os.Stdout, warnStyle, s) }
func renderError(s string) string   { return renderTo(os.Stderr, errorStyle, s) }
func renderDim(s string) string     { return renderTo(os.Stdout, dimStyle, s) }
func renderBold(s string) string    { return renderTo(os.Stdout, boldStyle, s) }

func renderTo(f *os.File, style lipgloss.Style, s string) string {
	if !isTerminal(f) {
		return s
	}
	return style.Render(s)
}
