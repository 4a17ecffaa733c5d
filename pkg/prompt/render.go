package prompt

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/madcore/madcore/pkg/engine"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Border(lipgloss.DoubleBorder()).
			Padding(0, 2)

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// Banner renders a phase title in a box.
func Banner(title string) string {
	return bannerStyle.Render(strings.ToUpper(title))
}

// Table renders rows under headers with a plain border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}

// ParameterTable renders build parameters as a Name/Value table.
func ParameterTable(params []engine.BuildParameter) string {
	rows := make([][]string, 0, len(params))
	for _, p := range params {
		rows = append(rows, []string{p.Name, p.Value})
	}
	return Table([]string{"Name", "Value"}, rows)
}
