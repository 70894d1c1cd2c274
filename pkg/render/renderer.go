// Package render draws line, bar, and scatter charts. All actual drawing
// is delegated to go-chart; this package owns parameter defaults, themes,
// and output encoding.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wcharczuk/go-chart/v2"
)

// ErrInvalidParams reports malformed render input (empty series, length
// mismatch, unknown theme or format). Maps to a 400 at the boundary.
var ErrInvalidParams = errors.New("invalid render parameters")

const (
	defaultWidth  = 800
	defaultHeight = 600
	maxDimension  = 4096
)

// Params are the shared knobs for every chart type.
type Params struct {
	Title  string
	XLabel string
	YLabel string
	Width  int
	Height int
	Theme  string
	Format string // "png" or "svg"
}

// Series is one named line or scatter dataset.
type Series struct {
	Name string
	X    []float64
	Y    []float64
}

type Renderer struct {
	logger *slog.Logger
}

func NewRenderer(logger *slog.Logger) *Renderer {
	return &Renderer{logger: logger}
}

func (p *Params) normalize() error {
	if p.Width == 0 {
		p.Width = defaultWidth
	}
	if p.Height == 0 {
		p.Height = defaultHeight
	}
	if p.Width < 0 || p.Width > maxDimension || p.Height < 0 || p.Height > maxDimension {
		return fmt.Errorf("%w: dimensions %dx%d out of range", ErrInvalidParams, p.Width, p.Height)
	}
	if p.Format == "" {
		p.Format = "png"
	}
	if p.Format != "png" && p.Format != "svg" {
		return fmt.Errorf("%w: unsupported output format %q", ErrInvalidParams, p.Format)
	}
	return nil
}

func provider(format string) chart.RendererProvider {
	if format == "svg" {
		return chart.SVG
	}
	return chart.PNG
}

// Line renders one or more continuous series.
func (r *Renderer) Line(p Params, series []Series) ([]byte, error) {
	return r.continuous(p, series, false)
}

// Scatter renders the series as dots without connecting strokes.
func (r *Renderer) Scatter(p Params, series []Series) ([]byte, error) {
	return r.continuous(p, series, true)
}

func (r *Renderer) continuous(p Params, series []Series, dots bool) ([]byte, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: at least one series is required", ErrInvalidParams)
	}
	theme, err := GetTheme(p.Theme)
	if err != nil {
		return nil, err
	}

	chartSeries := make([]chart.Series, 0, len(series))
	for i, s := range series {
		if len(s.X) == 0 || len(s.X) != len(s.Y) {
			return nil, fmt.Errorf("%w: series %d has mismatched x/y lengths", ErrInvalidParams, i)
		}
		style := chart.Style{StrokeColor: theme.seriesColor(i), StrokeWidth: 2.0}
		if dots {
			style = chart.Style{
				StrokeWidth: chart.Disabled,
				DotColor:    theme.seriesColor(i),
				DotWidth:    4.0,
			}
		}
		chartSeries = append(chartSeries, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: s.X,
			YValues: s.Y,
			Style:   style,
		})
	}

	graph := chart.Chart{
		Title:      p.Title,
		Width:      p.Width,
		Height:     p.Height,
		Background: chart.Style{FillColor: theme.Background, FontColor: theme.Text},
		Canvas:     chart.Style{FillColor: theme.Canvas},
		XAxis:      chart.XAxis{Name: p.XLabel, Style: chart.Style{FontColor: theme.Text}},
		YAxis:      chart.YAxis{Name: p.YLabel, Style: chart.Style{FontColor: theme.Text}},
		Series:     chartSeries,
	}

	return r.encode(&graph, nil, p)
}

// Bar renders labeled values as a bar chart.
func (r *Renderer) Bar(p Params, labels []string, values []float64) ([]byte, error) {
	if err := p.normalize(); err != nil {
		return nil, err
	}
	if len(labels) == 0 || len(labels) != len(values) {
		return nil, fmt.Errorf("%w: labels and values must be non-empty and equal length", ErrInvalidParams)
	}
	theme, err := GetTheme(p.Theme)
	if err != nil {
		return nil, err
	}

	bars := make([]chart.Value, 0, len(labels))
	for i := range labels {
		bars = append(bars, chart.Value{
			Label: labels[i],
			Value: values[i],
			Style: chart.Style{FillColor: theme.seriesColor(i), StrokeWidth: chart.Disabled},
		})
	}

	graph := chart.BarChart{
		Title:      p.Title,
		Width:      p.Width,
		Height:     p.Height,
		BarWidth:   max(20, (p.Width-100)/len(bars)-10),
		Background: chart.Style{FillColor: theme.Background, FontColor: theme.Text},
		Canvas:     chart.Style{FillColor: theme.Canvas},
		Bars:       bars,
	}

	return r.encode(nil, &graph, p)
}

func (r *Renderer) encode(line *chart.Chart, bar *chart.BarChart, p Params) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if line != nil {
		err = line.Render(provider(p.Format), &buf)
	} else {
		err = bar.Render(provider(p.Format), &buf)
	}
	if err != nil {
		r.logger.Error("chart render failed", "format", p.Format, "error", err)
		return nil, fmt.Errorf("rendering chart: %w", err)
	}
	r.logger.Debug("chart rendered", "format", p.Format, "bytes", buf.Len())
	return buf.Bytes(), nil
}
