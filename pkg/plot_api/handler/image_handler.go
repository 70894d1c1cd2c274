package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	problem "github.com/gplot-io/gplot/pkg/plot_api/helpers/problem"
	"github.com/gplot-io/gplot/pkg/plot_api/middleware"
	"github.com/gplot-io/gplot/pkg/plot_api/models"
	"github.com/gplot-io/gplot/pkg/security"
	"github.com/gplot-io/gplot/pkg/storage"
)

var contentTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"svg":  "image/svg+xml",
	"pdf":  "application/pdf",
}

// ImageController serves stored images.
type ImageController struct {
	Storage *storage.ImageStorage
	Auditor *security.Auditor
}

func NewImageController(s *storage.ImageStorage, auditor *security.Auditor) *ImageController {
	return &ImageController{Storage: s, Auditor: auditor}
}

// auditDenied records a group mismatch on a stored artifact.
func (c *ImageController) auditDenied(ctx *gin.Context, guid string, err error) {
	if errors.Is(err, storage.ErrPermissionDenied) {
		c.Auditor.LogPermissionDenied(ctx.ClientIP(), guid, ctx.Request.Method, ctx.FullPath())
	}
}

// RetrieveImage handles GET /images/:id. The raw bytes are written with
// the format's content type rather than a JSON envelope, so this handler
// is registered directly on gin instead of through tonic and maps its
// own errors.
func (c *ImageController) RetrieveImage(ctx *gin.Context) {
	guid := ctx.Param("id")
	data, format, err := c.Storage.GetImage(guid, middleware.GroupFrom(ctx))
	if err != nil {
		c.auditDenied(ctx, guid, err)
		apiErr := problem.FromError(err)
		ctx.AbortWithStatusJSON(apiErr.Status, apiErr)
		return
	}
	contentType, ok := contentTypes[format]
	if !ok {
		contentType = "application/octet-stream"
	}
	ctx.Data(http.StatusOK, contentType, data)
}

// ListImages handles GET /images
func (c *ImageController) ListImages(ctx *gin.Context) (*models.ImageListResponse, error) {
	ids := c.Storage.ListImages(middleware.GroupFrom(ctx))
	return &models.ImageListResponse{Images: ids, Count: len(ids)}, nil
}

// DeleteImage handles DELETE /images/:id
func (c *ImageController) DeleteImage(ctx *gin.Context, params *models.ImageParams) (*models.DeleteImageResponse, error) {
	deleted, err := c.Storage.DeleteImage(params.Id, middleware.GroupFrom(ctx))
	if err != nil {
		c.auditDenied(ctx, params.Id, err)
		return nil, err
	}
	return &models.DeleteImageResponse{Deleted: deleted}, nil
}
