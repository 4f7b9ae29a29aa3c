// Package output formats notification history for the command line.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/jmylchreest/chatnotify/internal/model"
)

// Formatter formats notifications for output.
type Formatter interface {
	// Format writes formatted notifications to the writer.
	Format(w io.Writer, notifications []model.Notification) error
}

// FormatType represents an output format type.
type FormatType string

const (
	FormatDmenu FormatType = "dmenu"
	FormatJSON  FormatType = "json"
	FormatYAML  FormatType = "yaml"
	FormatPlain FormatType = "plain"
	FormatIDs   FormatType = "ids"
)

// Formats lists the accepted format names.
func Formats() []string {
	return []string{string(FormatDmenu), string(FormatJSON), string(FormatYAML), string(FormatPlain), string(FormatIDs)}
}

// NewFormatter creates a formatter for the named format.
func NewFormatter(format string, opts FormatterOptions) (Formatter, error) {
	switch FormatType(strings.ToLower(format)) {
	case FormatJSON:
		return NewJSONFormatter(), nil
	case FormatYAML:
		return NewYAMLFormatter(), nil
	case FormatPlain:
		return NewPlainFormatter(opts), nil
	case FormatIDs:
		return NewIDsFormatter(), nil
	case FormatDmenu, "":
		return NewDmenuFormatter(opts), nil
	}
	return nil, fmt.Errorf("unknown output format %q (valid: %s)", format, strings.Join(Formats(), ", "))
}

// FormatterOptions configures formatter behavior.
type FormatterOptions struct {
	Template       string // Custom template for dmenu/plain format
	ShowIndex      bool   // Show 1-based index prefix
	ShowTime       bool   // Show relative time
	ShowKind       bool   // Show notification kind
	BodyMaxLen     int    // Maximum body length (0 = unlimited)
	Separator      string // Field separator for dmenu format
	IncludeNewline bool   // Include newlines in body (default: replace with space)
}

// DefaultFormatterOptions returns sensible defaults for dmenu output.
func DefaultFormatterOptions() FormatterOptions {
	return FormatterOptions{
		ShowIndex:  true,
		ShowTime:   true,
		ShowKind:   true,
		BodyMaxLen: 80,
		Separator:  " | ",
	}
}
