package services

import (
	"encoding/base64"
	"errors"
	"log/slog"

	"github.com/gplot-io/gplot/pkg/plot_api/models"
	"github.com/gplot-io/gplot/pkg/render"
	"github.com/gplot-io/gplot/pkg/security"
	"github.com/gplot-io/gplot/pkg/storage"
)

// RenderService validates incoming chart requests, renders them, and
// optionally persists the result.
type RenderService struct {
	renderer  *render.Renderer
	sanitizer *security.Sanitizer
	storage   *storage.ImageStorage
	auditor   *security.Auditor
	logger    *slog.Logger
}

func NewRenderService(r *render.Renderer, store *storage.ImageStorage, auditor *security.Auditor, logger *slog.Logger) *RenderService {
	return &RenderService{
		renderer:  r,
		sanitizer: security.NewSanitizer(),
		storage:   store,
		auditor:   auditor,
		logger:    logger,
	}
}

// auditRejected reports a sanitization failure, and a pattern hit when
// the input matched an injection pattern.
func (s *RenderService) auditRejected(clientID, inputType string, err error) {
	s.auditor.LogSanitizationFailure(clientID, inputType, err.Error(), "")
	var serr *security.SanitizationError
	if errors.As(err, &serr) && serr.PatternType != "" {
		s.auditor.LogSuspiciousPattern(clientID, serr.PatternType, serr.Reason, "")
	}
}

// sanitizeParams cleans the shared options and converts them into render
// parameters. Text fields are escaped for SVG output because SVG is
// served as markup.
func (s *RenderService) sanitizeParams(opts models.RenderOptions, clientID string) (render.Params, error) {
	p := render.Params{
		Width:  opts.Width,
		Height: opts.Height,
	}

	var err error
	if opts.Theme != "" {
		if p.Theme, err = s.sanitizer.Theme(opts.Theme); err != nil {
			s.auditRejected(clientID, "theme", err)
			return render.Params{}, err
		}
	}
	if opts.Format != "" {
		if p.Format, err = s.sanitizer.Format(opts.Format); err != nil {
			s.auditRejected(clientID, "format", err)
			return render.Params{}, err
		}
	}

	clean := s.sanitizer.String
	if p.Format == "svg" {
		clean = func(text string, _ int) (string, error) { return s.sanitizer.ForSVG(text) }
	}
	if p.Title, err = clean(opts.Title, 200); err != nil {
		s.auditRejected(clientID, "title", err)
		return render.Params{}, err
	}
	if p.XLabel, err = clean(opts.XLabel, 100); err != nil {
		s.auditRejected(clientID, "xLabel", err)
		return render.Params{}, err
	}
	if p.YLabel, err = clean(opts.YLabel, 100); err != nil {
		s.auditRejected(clientID, "yLabel", err)
		return render.Params{}, err
	}
	return p, nil
}

func (s *RenderService) toSeries(datasets []models.Dataset, clientID string, svg bool) ([]render.Series, error) {
	series := make([]render.Series, len(datasets))
	for i, d := range datasets {
		var name string
		var err error
		if svg {
			name, err = s.sanitizer.ForSVG(d.Name)
		} else {
			name, err = s.sanitizer.String(d.Name, 100)
		}
		if err != nil {
			s.auditRejected(clientID, "dataset name", err)
			return nil, err
		}
		series[i] = render.Series{Name: name, X: d.X, Y: d.Y}
	}
	return series, nil
}

// respond stores the image when requested, otherwise inlines it base64
// encoded.
func (s *RenderService) respond(data []byte, format, group string, store bool) (*models.RenderResponse, error) {
	resp := &models.RenderResponse{Format: format, Size: len(data)}
	if store {
		id, err := s.storage.SaveImage(data, format, group)
		if err != nil {
			return nil, err
		}
		resp.Id = id
		return resp, nil
	}
	resp.Data = base64.StdEncoding.EncodeToString(data)
	return resp, nil
}

func (s *RenderService) RenderLine(req *models.LineRenderRequest, group, clientID string) (*models.RenderResponse, error) {
	p, err := s.sanitizeParams(req.RenderOptions, clientID)
	if err != nil {
		return nil, err
	}
	series, err := s.toSeries(req.Datasets, clientID, p.Format == "svg")
	if err != nil {
		return nil, err
	}
	data, err := s.renderer.Line(p, series)
	if err != nil {
		return nil, err
	}
	return s.respond(data, p.Format, group, req.Store)
}

func (s *RenderService) RenderScatter(req *models.ScatterRenderRequest, group, clientID string) (*models.RenderResponse, error) {
	p, err := s.sanitizeParams(req.RenderOptions, clientID)
	if err != nil {
		return nil, err
	}
	series, err := s.toSeries(req.Datasets, clientID, p.Format == "svg")
	if err != nil {
		return nil, err
	}
	data, err := s.renderer.Scatter(p, series)
	if err != nil {
		return nil, err
	}
	return s.respond(data, p.Format, group, req.Store)
}

func (s *RenderService) RenderBar(req *models.BarRenderRequest, group, clientID string) (*models.RenderResponse, error) {
	p, err := s.sanitizeParams(req.RenderOptions, clientID)
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(req.Labels))
	for i, l := range req.Labels {
		var cerr error
		if p.Format == "svg" {
			labels[i], cerr = s.sanitizer.ForSVG(l)
		} else {
			labels[i], cerr = s.sanitizer.String(l, 100)
		}
		if cerr != nil {
			s.auditRejected(clientID, "bar label", cerr)
			return nil, cerr
		}
	}
	data, err := s.renderer.Bar(p, labels, req.Values)
	if err != nil {
		return nil, err
	}
	return s.respond(data, p.Format, group, req.Store)
}
