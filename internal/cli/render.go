package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bhtools/podbulk/internal/events"
	"github.com/bhtools/podbulk/internal/models"
)

// Status colors follow the web page: orange while checking, green on
// success, red on failure.
var (
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#2E8B57"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC143C"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Faint(true)
)

func styleFor(state models.ValidationState) lipgloss.Style {
	switch state {
	case models.StateValid:
		return okStyle
	case models.StateInvalid:
		return failStyle
	case models.StateValidating:
		return pendingStyle
	default:
		return mutedStyle
	}
}

// printCredential writes one status line for cred.
func printCredential(w io.Writer, cred models.Credential) {
	msg := cred.Message
	if msg == "" {
		msg = "not set"
	}
	fmt.Fprintf(w, "%-18s %s\n", cred.Kind.DisplayName()+":", styleFor(cred.State).Render(msg))
}

// printOptions writes a two-column list, marking the selected value.
func printOptions(w io.Writer, title string, opts []events.Option, selected string) {
	fmt.Fprintln(w, headerStyle.Render(title))
	if len(opts) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("  (none)"))
		return
	}
	width := 0
	for _, o := range opts {
		width = max(width, len(o.Value))
	}
	for _, o := range opts {
		marker := " "
		if o.Value == selected {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-*s  %s\n", marker, width, o.Value, o.Label)
	}
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, okStyle.Render(fmt.Sprintf(format, args...)))
}

func printFailure(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, failStyle.Render(fmt.Sprintf(format, args...)))
}

// mask hides all but the last four characters of a secret.
func mask(secret string) string {
	if secret == "" {
		return mutedStyle.Render("(not set)")
	}
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}
