package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#8E4EC6")). // Purple
			Padding(0, 1).
			MarginBottom(1)

	colHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8E4EC6")).
			Bold(true).
			MarginRight(1)

	cellStyle = lipgloss.NewStyle().MarginRight(1)
	sepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginRight(1)

	recordColor  = lipgloss.Color("#2E8B57") // SeaGreen
	skipColor    = lipgloss.Color("241")     // Dark Gray
	warningColor = lipgloss.Color("#D7875F")
)

// column is one fixed-width table column.
type column struct {
	title string
	width int
}

func printTable(title string, cols []column, rows [][]string, colorFor func(row []string, col int) lipgloss.TerminalColor) {
	fmt.Println(headerStyle.Render(title))

	headers := make([]string, 0, len(cols))
	separators := make([]string, 0, len(cols))
	for _, c := range cols {
		headers = append(headers, colHeaderStyle.Width(c.width).Render(c.title))
		separators = append(separators, sepStyle.Render(strings.Repeat("─", c.width)))
	}
	fmt.Printf("  %s\n", lipgloss.JoinHorizontal(lipgloss.Top, headers...))
	fmt.Printf("  %s\n", lipgloss.JoinHorizontal(lipgloss.Top, separators...))

	for _, row := range rows {
		cells := make([]string, 0, len(cols))
		for i, c := range cols {
			style := cellStyle.Width(c.width)
			if colorFor != nil {
				if color := colorFor(row, i); color != nil {
					style = style.Foreground(color)
				}
			}
			value := ""
			if i < len(row) {
				value = row[i]
			}
			cells = append(cells, style.Render(truncate(value, c.width)))
		}
		fmt.Printf("  %s\n", lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}

	fmt.Println()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
