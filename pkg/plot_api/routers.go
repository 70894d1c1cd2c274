package plot_api

import (
	"github.com/gin-gonic/gin"
	"github.com/gplot-io/gplot/pkg/auth"
	"github.com/gplot-io/gplot/pkg/plot_api/handler"
	"github.com/gplot-io/gplot/pkg/plot_api/middleware"
	"github.com/gplot-io/gplot/pkg/security"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/wI2L/fizz"
	"github.com/wI2L/fizz/openapi"
)

var apiVersionHeader = fizz.Header(
	"API-Version",
	"The API version of the response",
	"",
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	Auth        *auth.Service
	Auditor     *security.Auditor
	Limiter     *security.RateLimiter
	Render      *handler.RenderController
	Images      *handler.ImageController
	Admin       *handler.AdminController
	RequireAuth bool
	AdminGroup  string
}

func NewRouter(apiVersion string, deps RouterDeps) *fizz.Fizz {
	g := gin.Default()
	g.Use(middleware.RequestID())
	g.Use(APIVersionMiddleware(apiVersion))
	f := fizz.NewFromEngine(g)

	f.Generator().SetServers([]*openapi.Server{
		{
			URL:         "/v1",
			Description: "gplot chart rendering API",
		},
	})

	info := &openapi.Info{
		Title:       "gplot API v1",
		Description: "Chart rendering and image storage API",
		Version:     apiVersion,
	}

	authn := middleware.RequireAuth(deps.Auth, deps.Auditor, deps.RequireAuth)
	limited := middleware.RateLimit(deps.Limiter, deps.Auditor)

	root := f.Group("/v1", "API v1", "gplot v1 routes")

	render := root.Group("/render", "Render", "Chart rendering endpoints", authn, limited)
	render.POST("/line",
		[]fizz.OperationOption{
			fizz.Summary("Render a line chart"),
			apiVersionHeader,
		},
		tonic.Handler(deps.Render.RenderLine, 200),
	)
	render.POST("/scatter",
		[]fizz.OperationOption{
			fizz.Summary("Render a scatter chart"),
			apiVersionHeader,
		},
		tonic.Handler(deps.Render.RenderScatter, 200),
	)
	render.POST("/bar",
		[]fizz.OperationOption{
			fizz.Summary("Render a bar chart"),
			apiVersionHeader,
		},
		tonic.Handler(deps.Render.RenderBar, 200),
	)

	images := root.Group("/images", "Images", "Stored image endpoints", authn, limited)
	// Raw image bytes bypass tonic's JSON envelope, so this route is
	// registered on the engine with the same middleware chain.
	g.GET("/v1/images/:id", authn, limited, deps.Images.RetrieveImage)
	images.GET("",
		[]fizz.OperationOption{
			fizz.Summary("List stored image ids"),
			apiVersionHeader,
		},
		tonic.Handler(deps.Images.ListImages, 200),
	)
	images.DELETE("/:id",
		[]fizz.OperationOption{
			fizz.Summary("Delete a stored image"),
			apiVersionHeader,
		},
		tonic.Handler(deps.Images.DeleteImage, 200),
	)

	admin := root.Group("/admin", "Admin", "Maintenance endpoints",
		authn, middleware.RequireGroup(deps.AdminGroup, deps.Auditor))
	admin.POST("/purge",
		[]fizz.OperationOption{
			fizz.Summary("Purge stored images by age and group"),
			apiVersionHeader,
		},
		tonic.Handler(deps.Admin.PurgeImages, 200),
	)

	root.GET("/health",
		[]fizz.OperationOption{
			fizz.Summary("Service health"),
			apiVersionHeader,
		},
		tonic.Handler(deps.Admin.Health, 200),
	)

	f.GET("/v1/openapi.json", []fizz.OperationOption{}, f.OpenAPI(info, "json"))

	return f
}

type apiVersionWriter struct {
	gin.ResponseWriter
	version string
}

func (w *apiVersionWriter) WriteHeader(code int) {
	if code >= 200 && code < 300 {
		w.Header().Set("API-Version", w.version)
	}
	w.ResponseWriter.WriteHeader(code)
}

func APIVersionMiddleware(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer = &apiVersionWriter{c.Writer, version}
		c.Next()
	}
}
