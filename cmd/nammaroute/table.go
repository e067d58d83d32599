package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column over items of type T.
type column[T any] struct {
	header string
	// numeric columns are right-aligned.
	numeric bool
	value   func(T) string
}

// renderTable prints items one row each. Headers keep their case. An empty
// column list renders nothing.
func renderTable[T any](cols []column[T], items []T) string {
	if len(cols) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Header = text.FormatDefault

	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		header[i] = c.header
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft, Align: text.AlignLeft}
		if c.numeric {
			configs[i].Align = text.AlignRight
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, item := range items {
		row := make(table.Row, len(cols))
		for i, c := range cols {
			row[i] = c.value(item)
		}
		tw.AppendRow(row)
	}
	return tw.Render()
}

func rupees(n int) string { return "₹" + strconv.Itoa(n) }
