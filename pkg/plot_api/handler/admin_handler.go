package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/gplot-io/gplot/pkg/plot_api/models"
	"github.com/gplot-io/gplot/pkg/storage"
)

// AdminController exposes maintenance operations. Routes using it are
// gated on the admin group by middleware.
type AdminController struct {
	Storage           *storage.ImageStorage
	SecretFingerprint string
}

func NewAdminController(s *storage.ImageStorage, fingerprint string) *AdminController {
	return &AdminController{Storage: s, SecretFingerprint: fingerprint}
}

// PurgeImages handles POST /admin/purge
func (c *AdminController) PurgeImages(ctx *gin.Context, body *models.PurgeRequest) (*models.PurgeResponse, error) {
	deleted, err := c.Storage.Purge(body.AgeDays, body.Group)
	if err != nil {
		return nil, err
	}
	return &models.PurgeResponse{Deleted: deleted}, nil
}

// Health handles GET /health
func (c *AdminController) Health(ctx *gin.Context) (*models.HealthResponse, error) {
	return &models.HealthResponse{
		Status:            "ok",
		SecretFingerprint: c.SecretFingerprint,
	}, nil
}
