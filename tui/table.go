package tui

import (
	"fmt"
	"io"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

var styleHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).Padding(0, 1)

var styleCell = lipgloss.NewStyle().Padding(0, 1)

// RenderTable writes rows to w. Styled output draws a bordered table for a
// terminal; otherwise rows are tab separated with a header line, for pipes.
func RenderTable(w io.Writer, columns []string, rows [][]string, styled bool) error {
	if !styled {
		var b strings.Builder
		b.WriteString(strings.Join(columns, "\t"))
		b.WriteString("\n")
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
		_, err := io.WriteString(w, b.String())
		return err
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleDim).
		Headers(columns...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			return styleCell
		})
	_, err := fmt.Fprintln(w, t.String())
	return err
}
