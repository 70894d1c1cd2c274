package render

import (
	"fmt"

	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Theme is a static style table applied to every chart element.
type Theme struct {
	Name       string
	Background drawing.Color
	Canvas     drawing.Color
	Text       drawing.Color
	Palette    []drawing.Color
}

var themes = map[string]Theme{
	"light": {
		Name:       "light",
		Background: drawing.ColorWhite,
		Canvas:     drawing.ColorWhite,
		Text:       drawing.Color{R: 51, G: 51, B: 51, A: 255},
		Palette: []drawing.Color{
			{R: 31, G: 119, B: 180, A: 255},
			{R: 255, G: 127, B: 14, A: 255},
			{R: 44, G: 160, B: 44, A: 255},
			{R: 214, G: 39, B: 40, A: 255},
		},
	},
	"dark": {
		Name:       "dark",
		Background: drawing.Color{R: 30, G: 30, B: 30, A: 255},
		Canvas:     drawing.Color{R: 40, G: 40, B: 40, A: 255},
		Text:       drawing.Color{R: 220, G: 220, B: 220, A: 255},
		Palette: []drawing.Color{
			{R: 114, G: 178, B: 229, A: 255},
			{R: 255, G: 174, B: 98, A: 255},
			{R: 130, G: 214, B: 130, A: 255},
			{R: 240, G: 112, B: 113, A: 255},
		},
	},
	"bizlight": {
		Name:       "bizlight",
		Background: drawing.ColorWhite,
		Canvas:     drawing.Color{R: 248, G: 248, B: 248, A: 255},
		Text:       drawing.Color{R: 68, G: 68, B: 68, A: 255},
		Palette: []drawing.Color{
			{R: 0, G: 83, B: 155, A: 255},
			{R: 128, G: 128, B: 128, A: 255},
			{R: 0, G: 133, B: 119, A: 255},
			{R: 165, G: 28, B: 48, A: 255},
		},
	},
	"bizdark": {
		Name:       "bizdark",
		Background: drawing.Color{R: 24, G: 28, B: 36, A: 255},
		Canvas:     drawing.Color{R: 33, G: 39, B: 50, A: 255},
		Text:       drawing.Color{R: 205, G: 214, B: 224, A: 255},
		Palette: []drawing.Color{
			{R: 86, G: 156, B: 214, A: 255},
			{R: 156, G: 156, B: 156, A: 255},
			{R: 78, G: 201, B: 176, A: 255},
			{R: 206, G: 84, B: 96, A: 255},
		},
	},
}

// GetTheme resolves a theme by name; the empty name is the light theme.
func GetTheme(name string) (Theme, error) {
	if name == "" {
		name = "light"
	}
	t, ok := themes[name]
	if !ok {
		return Theme{}, fmt.Errorf("%w: unknown theme %q", ErrInvalidParams, name)
	}
	return t, nil
}

// seriesColor cycles the palette.
func (t Theme) seriesColor(i int) drawing.Color {
	return t.Palette[i%len(t.Palette)]
}
