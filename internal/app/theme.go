package app

import (
	ui "github.com/gizak/termui/v3"
)

var colorMap = map[string]ui.Color{
	"green":   ui.ColorGreen,
	"red":     ui.ColorRed,
	"blue":    ui.ColorBlue,
	"cyan":    ui.ColorCyan,
	"magenta": ui.ColorMagenta,
	"yellow":  ui.ColorYellow,
	"white":   ui.ColorWhite,
}

// Theme carries the accent color both as a termui color and as the name
// used inside termui style markup.
type Theme struct {
	Name      string
	Accent    ui.Color
	Secondary ui.Color
	// Text is the markup color for ordinary cells.
	Text  string
	Light bool
}

func themeFor(colorName string, lightMode bool) Theme {
	color, ok := colorMap[colorName]
	if !ok {
		color = ui.ColorGreen
		colorName = "green"
	}

	th := Theme{Name: colorName, Accent: color, Secondary: 245, Text: "white", Light: lightMode}
	if lightMode {
		th.Secondary = ui.ColorBlack
		th.Text = "black"
		// white on a light background is invisible
		if color == ui.ColorWhite {
			th.Accent = ui.ColorBlack
			th.Name = "black"
		}
	}
	return th
}

// applyTheme updates termui's global defaults so newly created widgets
// pick up the accent color.
func applyTheme(th Theme) {
	ui.Theme.Block.Title.Fg = th.Accent
	ui.Theme.Block.Border.Fg = th.Accent
	ui.Theme.Paragraph.Text.Fg = th.Accent
	ui.Theme.List.Text.Fg = th.Accent
	ui.Theme.Sparkline.Line = th.Accent
	ui.Theme.Sparkline.Title.Fg = th.Accent
}

// stateColor picks the markup color for a link state.
func stateColor(state string) string {
	switch state {
	case "ACTIVE":
		return "green"
	case "DOWN":
		return "red"
	default:
		return "yellow"
	}
}

// loadColor grades a utilization percentage.
func loadColor(pct float64) string {
	switch {
	case pct >= 80:
		return "red"
	case pct >= 50:
		return "yellow"
	default:
		return "green"
	}
}
