package models

// RenderOptions are the knobs shared by every chart type.
type RenderOptions struct {
	Title  string `json:"title,omitempty" binding:"omitempty,max=200"`
	XLabel string `json:"xLabel,omitempty" binding:"omitempty,max=100"`
	YLabel string `json:"yLabel,omitempty" binding:"omitempty,max=100"`
	Width  int    `json:"width,omitempty" binding:"omitempty,min=64,max=4096"`
	Height int    `json:"height,omitempty" binding:"omitempty,min=64,max=4096"`
	Theme  string `json:"theme,omitempty" binding:"omitempty,oneof=light dark bizlight bizdark"`
	Format string `json:"format,omitempty" binding:"omitempty,oneof=png svg"`
	// Store persists the rendered image and returns its id instead of
	// inline image data.
	Store bool `json:"store,omitempty"`
}

// Dataset is one named series of points.
type Dataset struct {
	Name string    `json:"name,omitempty" binding:"omitempty,max=100"`
	X    []float64 `json:"x" binding:"required,min=1"`
	Y    []float64 `json:"y" binding:"required,min=1"`
}

type LineRenderRequest struct {
	RenderOptions
	Datasets []Dataset `json:"datasets" binding:"required,min=1,dive"`
}

type ScatterRenderRequest struct {
	RenderOptions
	Datasets []Dataset `json:"datasets" binding:"required,min=1,dive"`
}

type BarRenderRequest struct {
	RenderOptions
	Labels []string  `json:"labels" binding:"required,min=1"`
	Values []float64 `json:"values" binding:"required,min=1"`
}

// RenderResponse carries either a stored image id (store=true) or the
// base64-encoded image inline.
type RenderResponse struct {
	Id     string `json:"id,omitempty"`
	Data   string `json:"data,omitempty"`
	Format string `json:"format"`
	Size   int    `json:"size"`
}
