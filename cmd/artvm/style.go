package main

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	offsetStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	mnemonicStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#87CEEB"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	breakStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// isTerminal reports whether f is attached to a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// styleListing colors a listing produced by bytecode.ListingWithLabels:
// ".label" lines, "OFFS  MNEMONIC operands" lines and "; error" lines.
func styleListing(listing string) string {
	var b strings.Builder
	for _, line := range strings.SplitAfter(listing, "\n") {
		body := strings.TrimSuffix(line, "\n")
		nl := line[len(body):]
		switch {
		case body == "":
		case strings.HasPrefix(body, "."):
			b.WriteString(labelStyle.Render(body))
		case len(body) > 6 && body[4:6] == "  ":
			b.WriteString(offsetStyle.Render(body[:4]))
			b.WriteString("  ")
			text := body[6:]
			if strings.HasPrefix(text, ";") {
				b.WriteString(errorStyle.Render(text))
				break
			}
			mnemonic, operands, _ := strings.Cut(text, " ")
			b.WriteString(mnemonicStyle.Render(mnemonic))
			if operands != "" {
				b.WriteString(" " + operands)
			}
		default:
			b.WriteString(body)
		}
		b.WriteString(nl)
	}
	return b.String()
}
