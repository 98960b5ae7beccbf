package output

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders views as a markdown table.
type MarkdownFormatter struct{}

// Format renders a view as Markdown.
func (f *MarkdownFormatter) Format(view *View) (string, error) {
	if view == nil {
		return "", nil
	}

	var sb strings.Builder
	if view.Title != "" {
		sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(view.Title)))
	}
	if len(view.Header) == 0 {
		return sb.String(), nil
	}

	sb.WriteString(markdownRow(view.Header))
	separators := make([]string, len(view.Header))
	for i, h := range view.Header {
		separators[i] = strings.Repeat("-", max(len(h), 3))
	}
	sb.WriteString("|" + strings.Join(separators, "|") + "|\n")

	for _, r := range view.Rows {
		sb.WriteString(markdownRow(r))
	}

	if view.Footer != "" {
		sb.WriteString(fmt.Sprintf("\n**%s**\n", escapeMarkdownCell(view.Footer)))
	}
	return sb.String(), nil
}

func markdownRow(cells []string) string {
	escaped := make([]string, len(cells))
	for i, c := range cells {
		if c == "" {
			c = " "
		}
		escaped[i] = escapeMarkdownCell(c)
	}
	return "| " + strings.Join(escaped, " | ") + " |\n"
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
