package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/loopfz/gadgeto/tonic"

	"github.com/joho/godotenv"

	api "github.com/gplot-io/gplot/pkg/plot_api"
	"github.com/gplot-io/gplot/pkg/auth"
	"github.com/gplot-io/gplot/pkg/jobs"
	"github.com/gplot-io/gplot/pkg/plot_api/handler"
	problem "github.com/gplot-io/gplot/pkg/plot_api/helpers/problem"
	"github.com/gplot-io/gplot/pkg/plot_api/services"
	"github.com/gplot-io/gplot/pkg/render"
	"github.com/gplot-io/gplot/pkg/security"
	"github.com/gplot-io/gplot/pkg/settings"
	"github.com/gplot-io/gplot/pkg/storage"
)

const apiVersion = "1.0.0"

func invalidParamsFromBinding(err error, sample any) []problem.InvalidParam {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []problem.InvalidParam{{Name: "body", Reason: err.Error()}}
	}

	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	out := make([]problem.InvalidParam, 0, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if f, ok := t.FieldByName(fe.StructField()); ok {
			if tag := f.Tag.Get("json"); tag != "" && tag != "-" {
				name = strings.Split(tag, ",")[0]
			}
		}
		out = append(out, problem.InvalidParam{
			Name:   name,
			Reason: humanReason(fe),
		})
	}
	return out
}

func humanReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fe.Error()
	}
}

func init() {
	tonic.SetErrorHook(func(c *gin.Context, err error) (int, interface{}) {
		c.Header("Content-Type", "application/problem+json")

		var be tonic.BindError
		if errors.As(err, &be) || isValidationErr(err) {
			invalids := invalidParamsFromBinding(err, struct{}{})
			apiErr := problem.NewBadRequest("invalid request body", invalids...)
			return apiErr.Status, apiErr
		}

		apiErr := problem.FromError(err)
		if apiErr.RetryAfter > 0 {
			c.Header("Retry-After", fmt.Sprintf("%d", apiErr.RetryAfter))
		}
		return apiErr.Status, apiErr
	})
}

func isValidationErr(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}

func main() {
	_ = godotenv.Load()

	cfg, err := settings.FromEnv()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	auditor, err := security.NewAuditor(cfg.Audit.LogFile, cfg.Audit.Console, security.LevelInfo, logger)
	if err != nil {
		log.Fatalf("failed to open audit log: %v", err)
	}
	if cfg.Audit.DBPath != "" {
		db, err := security.OpenAuditDB(cfg.Audit.DBPath)
		if err != nil {
			logger.Warn("audit database unavailable, continuing without it", "error", err)
		} else {
			auditor = auditor.WithDatabase(db)
		}
	}

	store, err := storage.NewImageStorage(cfg.Storage.Dir, logger)
	if err != nil {
		log.Fatalf("failed to initialise image storage: %v", err)
	}

	limiter := security.NewRateLimiter(cfg.RateLimit.DefaultLimit, cfg.RateLimit.Window, cfg.RateLimit.Enabled)
	if cfg.RateLimit.RenderLimit > 0 {
		// Rendering is expensive; give it a tighter budget than reads.
		for _, endpoint := range []string{"/v1/render/line", "/v1/render/scatter", "/v1/render/bar"} {
			limiter.SetEndpointLimit(endpoint, cfg.RateLimit.RenderLimit, cfg.RateLimit.Window)
		}
	}

	tokenStore, err := auth.NewFileTokenStore(cfg.Auth.TokenStorePath, logger)
	if err != nil {
		log.Fatalf("failed to open token store: %v", err)
	}
	authService, err := auth.NewService(cfg.Auth.JWTSecret, tokenStore, logger)
	if err != nil && cfg.Auth.RequireAuth {
		log.Fatalf("failed to initialise auth service: %v", err)
	}

	renderService := services.NewRenderService(render.NewRenderer(logger), store, auditor, logger)

	ctx := context.Background()
	jobs.ScheduleDailyPurge(ctx, store, cfg.Storage.PurgeAgeDays, logger)
	jobs.ScheduleBucketCleanup(ctx, limiter, logger)

	router := api.NewRouter(apiVersion, api.RouterDeps{
		Auth:        authService,
		Auditor:     auditor,
		Limiter:     limiter,
		Render:      handler.NewRenderController(renderService),
		Images:      handler.NewImageController(store, auditor),
		Admin:       handler.NewAdminController(store, cfg.Auth.SecretFingerprint()),
		RequireAuth: cfg.Auth.RequireAuth,
		AdminGroup:  cfg.Auth.AdminGroup,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("server starting", "addr", addr, "secret_fingerprint", cfg.Auth.SecretFingerprint())
	log.Fatal(http.ListenAndServe(addr, router))
}
