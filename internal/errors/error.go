package errors

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"os"
)

// Category represents the type of error.
type Category string

const (
	CategoryConfig    Category = "config"
	CategoryTransport Category = "transport"
	CategoryProtocol  Category = "protocol"
	CategoryCLI       Category = "cli"
)

// Location represents a position in a configuration file.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// TickError is a structured error with a code, a location and a hint.
type TickError struct {
	// Code is a unique error identifier (e.g., "T101").
	Code string

	// Category is the error type (config, transport, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location points into the file that caused the error, if any.
	Location *Location

	// Context contains the lines surrounding Location.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Example shows a correct value.
	Example string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *TickError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *TickError) Unwrap() error {
	return e.Wrapped
}

// WithLocation adds a file position to the error and loads the lines around it.
func (e *TickError) WithLocation(file string, line, column int) *TickError {
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, 5)
	return e
}

// WithOffset converts a byte offset in data to a line and column, as reported
// by encoding/json syntax errors.
func (e *TickError) WithOffset(file string, data []byte, offset int64) *TickError {
	line, col := 1, 1
	for i := int64(0); i < offset && i < int64(len(data)); i++ {
		if data[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return e.WithLocation(file, line, col)
}

// WithSuggestion adds a fix suggestion to the error.
func (e *TickError) WithSuggestion(s string) *TickError {
	e.Suggestion = s
	return e
}

// WithExample adds an example value to the error.
func (e *TickError) WithExample(ex string) *TickError {
	e.Example = ex
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *TickError) WithDetail(d string) *TickError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *TickError) Wrap(err error) *TickError {
	e.Wrapped = err
	return e
}

func readContextLines(filename string, targetLine, contextSize int) []string {
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}

	return lines
}

// New creates a TickError from a registered error code.
func New(code string) *TickError {
	template, ok := registry[code]
	if !ok {
		return &TickError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &TickError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a new TickError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *TickError {
	return &TickError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a TickError. An error that already
// carries a TickError in its chain is returned unchanged.
func FromError(err error, code string) *TickError {
	if err == nil {
		return nil
	}
	var te *TickError
	if stderrors.As(err, &te) {
		return te
	}
	return New(code).Wrap(err)
}

// HasCode reports whether any TickError in err's tree has the given code.
func HasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	if te, ok := err.(*TickError); ok && te.Code == code {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return HasCode(u.Unwrap(), code)
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if HasCode(e, code) {
				return true
			}
		}
	}
	return false
}
