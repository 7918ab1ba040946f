package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column defines a table column. Cells wider than Width are cut with "…".
type Column struct {
	Title string
	Width int
}

// Row is a slice of cell values. Cells may carry ANSI styling.
type Row []string

// Table renders a lipgloss-styled table.
type Table struct {
	Columns []Column
	Rows    []Row
	// Empty is shown in place of the rows when there are none.
	Empty  string
	SelIdx int // selected row index (-1 = none)
}

// NewTable creates a new table.
func NewTable(cols []Column) *Table {
	return &Table{Columns: cols, SelIdx: -1}
}

// AddRow appends a row.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, Row(cells))
}

// fit pads or cuts s to exactly width visible columns.
func fit(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return padR(s, width)
	}
	plain := []rune(stripANSI(s))
	if len(plain) < width {
		return string(plain)
	}
	if width <= 1 {
		return string(plain[:width])
	}
	return string(plain[:width-1]) + "…"
}

// stripANSI removes SGR escape sequences.
func stripANSI(s string) string {
	var b strings.Builder
	inEsc := false
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEsc = true
		case inEsc && r == 'm':
			inEsc = false
		case !inEsc:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Render returns the full table as a string.
func (t *Table) Render() string {
	var sb strings.Builder

	headerStyle := lipgloss.NewStyle().Foreground(ColorHighlight).Bold(true)
	cellStyle := lipgloss.NewStyle().Foreground(ColorValue)

	var headers, divider []string
	for _, col := range t.Columns {
		headers = append(headers, headerStyle.Render(fit(col.Title, col.Width)))
		divider = append(divider, StyleDim.Render(strings.Repeat("─", col.Width)))
	}
	sb.WriteString(strings.Join(headers, " ") + "\n")
	sb.WriteString(strings.Join(divider, " ") + "\n")

	if len(t.Rows) == 0 && t.Empty != "" {
		sb.WriteString(StyleMeta.Render("  "+t.Empty) + "\n")
		return sb.String()
	}

	for i, row := range t.Rows {
		var cells []string
		for j, col := range t.Columns {
			val := ""
			if j < len(row) {
				val = row[j]
			}
			switch {
			case i == t.SelIdx:
				cells = append(cells, StyleSelected.Render(fit(stripANSI(val), col.Width)))
			case strings.Contains(val, "\x1b"):
				cells = append(cells, fit(val, col.Width))
			default:
				cells = append(cells, cellStyle.Render(fit(val, col.Width)))
			}
		}
		sb.WriteString(strings.Join(cells, " ") + "\n")
	}
	return sb.String()
}

// KeyValueBlock renders key-value pairs in a bordered box.
func KeyValueBlock(title string, pairs [][2]string) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString(StyleTitle.Render(title))
		sb.WriteString("\n")
	}
	for _, p := range pairs {
		key := StyleMeta.Render(fmt.Sprintf("%-20s", p[0]+":"))
		sb.WriteString("  " + key + " " + StyleValue.Render(p[1]) + "\n")
	}
	return StyleBorder.Render(strings.TrimRight(sb.String(), "\n"))
}
