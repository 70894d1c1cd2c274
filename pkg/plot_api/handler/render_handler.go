package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/gplot-io/gplot/pkg/plot_api/middleware"
	"github.com/gplot-io/gplot/pkg/plot_api/models"
	"github.com/gplot-io/gplot/pkg/plot_api/services"
)

// RenderController binds HTTP requests to the RenderService
type RenderController struct {
	Service *services.RenderService
}

// NewRenderController creates a new controller
func NewRenderController(s *services.RenderService) *RenderController {
	return &RenderController{Service: s}
}

// RenderLine handles POST /render/line
func (c *RenderController) RenderLine(ctx *gin.Context, body *models.LineRenderRequest) (*models.RenderResponse, error) {
	return c.Service.RenderLine(body, middleware.GroupFrom(ctx), ctx.ClientIP())
}

// RenderScatter handles POST /render/scatter
func (c *RenderController) RenderScatter(ctx *gin.Context, body *models.ScatterRenderRequest) (*models.RenderResponse, error) {
	return c.Service.RenderScatter(body, middleware.GroupFrom(ctx), ctx.ClientIP())
}

// RenderBar handles POST /render/bar
func (c *RenderController) RenderBar(ctx *gin.Context, body *models.BarRenderRequest) (*models.RenderResponse, error) {
	return c.Service.RenderBar(body, middleware.GroupFrom(ctx), ctx.ClientIP())
}
