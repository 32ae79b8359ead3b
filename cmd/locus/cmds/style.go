package cmds

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

type Style struct {
	Current  lipgloss.Style
	Ancestor lipgloss.Style
	OffPath  lipgloss.Style
	Dim      lipgloss.Style
	Title    lipgloss.Style
	Role     lipgloss.Style
	Error    lipgloss.Style
}

type PathColors struct {
	Current  string
	Ancestor string
	OffPath  string
}

// DefaultStyles binds the styles to w, so that output going to a pipe or a
// buffer carries no escape sequences.
func DefaultStyles(w io.Writer) *Style {
	r := lipgloss.NewRenderer(w)

	lightModeColors := PathColors{
		Current:  "#D6336C",
		Ancestor: "#1C7ED6",
		OffPath:  "#868E96",
	}

	darkModeColors := PathColors{
		Current:  "#DD7090", // Desaturated pink for dark mode
		Ancestor: "#74C0FC",
		OffPath:  "#5C5F66",
	}

	return &Style{
		Current: r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{
			Light: lightModeColors.Current,
			Dark:  darkModeColors.Current,
		}),
		Ancestor: r.NewStyle().Foreground(lipgloss.AdaptiveColor{
			Light: lightModeColors.Ancestor,
			Dark:  darkModeColors.Ancestor,
		}),
		OffPath: r.NewStyle().Foreground(lipgloss.AdaptiveColor{
			Light: lightModeColors.OffPath,
			Dark:  darkModeColors.OffPath,
		}),
		Dim:   r.NewStyle().Faint(true),
		Title: r.NewStyle().Bold(true).Underline(true),
		Role:  r.NewStyle().Bold(true),
		Error: r.NewStyle().Foreground(lipgloss.Color("#FA5252")),
	}
}
