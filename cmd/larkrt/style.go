package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dekarrin/rosed"

	verr "github.com/nihei9/larkrt/error"
)

var (
	colorError  = lipgloss.Color("#EF4444")
	colorAccent = lipgloss.Color("#F59E0B")
	colorMuted  = lipgloss.Color("#6B7280")
	colorPassed = lipgloss.Color("#10B981")

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorError)

	caretStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	passedStyle = lipgloss.NewStyle().
			Foreground(colorPassed)

	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true)
)

// contextSpan is the count of bytes of the source shown on each side of an error position.
const contextSpan = 40

// formatError renders an error. A syntax error is shown with the line it occurred on and a caret under
// its position.
func formatError(src string, err error) string {
	var e verr.UnexpectedInput
	if !errors.As(err, &e) {
		return errorStyle.Render("error:") + " " + wrap(err.Error())
	}

	line, col := e.LineCol()
	msg, expected := describeSyntaxError(e)

	var b strings.Builder
	fmt.Fprintf(&b, "%v %v\n", errorStyle.Render(fmt.Sprintf("%v:%v:", line, col)), msg)
	ctx := strings.TrimSuffix(e.GetContext(src, contextSpan), "\n")
	if i := strings.LastIndex(ctx, "\n"); i >= 0 {
		b.WriteString("    ")
		b.WriteString(mutedStyle.Render(ctx[:i]))
		b.WriteString("\n    ")
		b.WriteString(caretStyle.Render(ctx[i+1:]))
		b.WriteString("\n")
	}
	if len(expected) > 0 {
		b.WriteString(wrap("expected: " + strings.Join(expected, ", ")))
		b.WriteString("\n")
	}
	return b.String()
}

func describeSyntaxError(e verr.UnexpectedInput) (string, []string) {
	switch x := e.(type) {
	case *verr.UnexpectedCharacters:
		return fmt.Sprintf("no terminal matches '%v'", x.Char), x.Allowed
	case *verr.UnexpectedEOF:
		return "unexpected end of input", x.Expected
	case *verr.UnexpectedToken:
		return fmt.Sprintf("unexpected token '%v' (%v)", x.Token.Value, x.Token.Type), x.Expected
	}
	return e.Error(), nil
}

// wrap fits a text in the output width.
func wrap(s string) string {
	if cfg.Output.Width <= 0 {
		return s
	}
	return rosed.Edit(s).Wrap(cfg.Output.Width).String()
}

// table lays out rows with the first one as the header.
func table(data [][]string) string {
	return rosed.Edit("").
		InsertTableOpts(0, data, cfg.Output.Width, rosed.Options{
			TableHeaders:             true,
			NoTrailingLineSeparators: true,
		}).
		String()
}
