package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	titleStyle = lipgloss.NewStyle().Bold(true)
)

func render(s lipgloss.Style, text string) string {
	if noColor {
		return text
	}
	return s.Render(text)
}

func printCheck(w io.Writer, ok bool, optional bool, format string, args ...any) {
	icon := render(okStyle, "✓")
	switch {
	case !ok && optional:
		icon = render(warnStyle, "○")
	case !ok:
		icon = render(failStyle, "✗")
	}
	fmt.Fprintf(w, "  %s %s\n", icon, fmt.Sprintf(format, args...))
}

func printField(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "  %s %v\n", render(labelStyle, fmt.Sprintf("%-14s", label)), value)
}

func printTitle(w io.Writer, title string) {
	fmt.Fprintln(w, render(titleStyle, title))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
