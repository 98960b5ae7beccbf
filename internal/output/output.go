// Package output renders command results as tables, markdown, JSON or YAML.
package output

import (
	"fmt"
	"strings"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
)

// View is a rendered-agnostic result: tabular formats use Header and Rows,
// structured formats marshal Data.
type View struct {
	Title  string
	Header []string
	Rows   [][]string
	Footer string
	Data   any
}

// Formatter renders views.
type Formatter interface {
	Format(view *View) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	case string(FormatYAML), "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	case FormatYAML:
		return &YAMLFormatter{}
	default:
		return &TableFormatter{}
	}
}

// Render formats view with the formatter for format.
func Render(format Format, view *View) (string, error) {
	if view == nil {
		return "", nil
	}
	return NewFormatter(format).Format(view)
}
