package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
)

// Style selects how Print lays out an error.
type Style string

const (
	// StylePretty is the multi-line terminal layout with source context.
	StylePretty Style = "pretty"
	// StyleCompact is one line: location, code, message and cause.
	StyleCompact Style = "compact"
	// StyleJSON is one JSON object per error, for scripts and CI logs.
	StyleJSON Style = "json"
)

// Styles lists the accepted values of ParseStyle.
var Styles = []Style{StylePretty, StyleCompact, StyleJSON}

// ParseStyle maps a --error-format value to a Style.
func ParseStyle(name string) (Style, error) {
	for _, s := range Styles {
		if string(s) == name {
			return s, nil
		}
	}
	return StylePretty, New(CodeInvalidErrorFormat).
		WithDetail(fmt.Sprintf("Got %q.", name))
}

const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
	ansiCyan  = "\033[36m"
	ansiGray  = "\033[90m"
	ansiBold  = "\033[1m"
)

var colors = true

// SetColors turns ANSI colors on or off for everything this package
// renders, including Paint.
func SetColors(enabled bool) {
	colors = enabled
}

// ColorsEnabled reports the current SetColors setting.
func ColorsEnabled() bool {
	return colors
}

// Paint wraps text in the given ANSI codes when colors are enabled.
func Paint(text string, codes ...string) string {
	if !colors || len(codes) == 0 {
		return text
	}
	return strings.Join(codes, "") + text + ansiReset
}

// Green is the color of the CLI success mark.
const Green = ansiGreen

// Format returns the error laid out for a terminal.
func (e *TickError) Format() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(Paint("ERROR", ansiRed, ansiBold))
	if e.Code != "" {
		b.WriteString(Paint(" "+e.Code, ansiBold))
	}
	b.WriteString(Paint(": ", ansiBold))
	b.WriteString(e.Message)
	b.WriteString("\n\n")

	if e.Location != nil {
		fmt.Fprintf(&b, "  %s\n\n", Paint(e.Location.String(), ansiCyan))
		e.writeSource(&b)
	}

	for _, line := range wrapText(e.Detail, 70) {
		fmt.Fprintf(&b, "  %s\n", line)
	}
	if e.Detail != "" {
		b.WriteString("\n")
	}

	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  %s%s\n\n", Paint("Hint: ", ansiCyan), e.Suggestion)
	}
	if e.Example != "" {
		fmt.Fprintf(&b, "  %s\n", Paint("Example:", ansiCyan))
		for _, line := range strings.Split(e.Example, "\n") {
			fmt.Fprintf(&b, "    %s\n", line)
		}
		b.WriteString("\n")
	}
	if e.Wrapped != nil {
		fmt.Fprintf(&b, "  %s%s\n", Paint("Cause: ", ansiGray), e.Wrapped.Error())
	}
	return b.String()
}

// writeSource prints the lines around Location with a marker under the
// offending column.
func (e *TickError) writeSource(b *strings.Builder) {
	if len(e.Context) == 0 {
		return
	}
	bar := Paint(" │ ", ansiGray)
	first := e.Location.Line - len(e.Context)/2
	for i, line := range e.Context {
		n := first + i
		if n != e.Location.Line {
			fmt.Fprintf(b, "    %4d%s%s\n", n, bar, line)
			continue
		}
		fmt.Fprintf(b, "  %s%4d%s%s\n", Paint("→ ", ansiRed), n, bar, line)
		if e.Location.Column > 0 {
			fmt.Fprintf(b, "       %s%s%s\n", Paint("│ ", ansiGray),
				strings.Repeat(" ", e.Location.Column-1), Paint("^", ansiRed))
		}
	}
	b.WriteString("\n")
}

// FormatCompact returns the error on one line, prefixed with its location.
func (e *TickError) FormatCompact() string {
	if e.Location == nil {
		return e.Error()
	}
	return e.Location.String() + ": " + e.Error()
}

type jsonLocation struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column,omitempty"`
}

type jsonError struct {
	Code       string        `json:"code,omitempty"`
	Category   Category      `json:"category,omitempty"`
	Message    string        `json:"message"`
	Detail     string        `json:"detail,omitempty"`
	Location   *jsonLocation `json:"location,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	Example    string        `json:"example,omitempty"`
	Cause      string        `json:"cause,omitempty"`
}

// FormatJSON returns the error as a single-line JSON object.
func (e *TickError) FormatJSON() string {
	out := jsonError{
		Code:       e.Code,
		Category:   e.Category,
		Message:    e.Message,
		Detail:     e.Detail,
		Suggestion: e.Suggestion,
		Example:    e.Example,
	}
	if e.Location != nil {
		out.Location = &jsonLocation{File: e.Location.File, Line: e.Location.Line, Column: e.Location.Column}
	}
	if e.Wrapped != nil {
		out.Cause = e.Wrapped.Error()
	}
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf(`{"message":%q}`, e.Error())
	}
	return string(data)
}

// Print writes err to w in the given style. Errors without a TickError in
// their chain are shown with their message only.
func Print(w io.Writer, err error, style Style) {
	var te *TickError
	if !stderrors.As(err, &te) {
		te = &TickError{Message: err.Error()}
	}
	switch style {
	case StyleJSON:
		fmt.Fprintln(w, te.FormatJSON())
	case StyleCompact:
		fmt.Fprintln(w, te.FormatCompact())
	default:
		fmt.Fprint(w, te.Format())
	}
}

// wrapText breaks text into lines of at most width bytes, splitting on
// whitespace. Longer words get a line of their own.
func wrapText(text string, width int) []string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > width {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
