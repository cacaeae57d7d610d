package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Message is a problem report with optional suggestions and hints
type Message struct {
	Title       string
	Problem     string
	Suggestions []string
	Hints       []string
	NoColor     bool
}

// Format renders the message
//
//	✗ HOST NOT FOUND: exmaple.com
//	   Did you mean: example.com?
//	   → List all routes: gas routes
func (m Message) Format() string {
	var b strings.Builder

	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)
	if m.NoColor {
		red.DisableColor()
		yellow.DisableColor()
		cyan.DisableColor()
	}

	if m.Title != "" {
		red.Fprintf(&b, "✗ %s: %s\n", strings.ToUpper(m.Title), m.Problem)
	} else {
		red.Fprintf(&b, "✗ %s\n", m.Problem)
	}
	if len(m.Suggestions) > 0 {
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}
	for _, hint := range m.Hints {
		cyan.Fprintf(&b, "   → %s\n", hint)
	}
	return b.String()
}

// Write writes the formatted message to w
func (m Message) Write(w io.Writer) {
	fmt.Fprint(w, m.Format())
}

// Success formats a success line
func Success(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}
