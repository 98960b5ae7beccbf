package output

import (
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableFormatter renders views as an ASCII table.
type TableFormatter struct {
	// Color highlights the marker and outcome columns.
	Color bool
}

// Format renders a view as a table.
func (f *TableFormatter) Format(view *View) (string, error) {
	if view == nil {
		return "", nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	// Footers carry counts and summaries, keep them as written.
	t.Style().Format.Footer = text.FormatDefault
	if view.Title != "" {
		t.SetTitle(view.Title)
	}
	if len(view.Header) > 0 {
		t.AppendHeader(toRow(view.Header, nil))
	}

	for _, r := range view.Rows {
		t.AppendRow(toRow(r, f.paint))
	}

	if view.Footer != "" && len(view.Header) > 0 {
		footer := make([]string, len(view.Header))
		footer[len(footer)-1] = view.Footer
		t.AppendFooter(toRow(footer, nil))
	}

	return t.Render(), nil
}

func (f *TableFormatter) paint(cell string) string {
	if !f.Color {
		return cell
	}
	switch cell {
	case ActiveMarker, "installed", "yes", "fresh":
		return color.GreenString(cell)
	case "reused":
		return color.CyanString(cell)
	case "failed", "stale", "missing":
		return color.RedString(cell)
	default:
		return cell
	}
}

func toRow(cells []string, paint func(string) string) table.Row {
	row := make(table.Row, len(cells))
	for i, cell := range cells {
		if paint != nil {
			cell = paint(cell)
		}
		row[i] = cell
	}
	return row
}
