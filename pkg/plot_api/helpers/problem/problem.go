// Package problem implements RFC 7807 problem responses and the mapping
// from the core error taxonomy to HTTP statuses.
package problem

import (
	"errors"
	"fmt"
	"math"

	"github.com/gplot-io/gplot/pkg/auth"
	"github.com/gplot-io/gplot/pkg/render"
	"github.com/gplot-io/gplot/pkg/security"
	"github.com/gplot-io/gplot/pkg/storage"
)

type InvalidParam struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type ErrorDetail struct {
	In     string `json:"in,omitempty"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// APIError implements error + Problem Details (RFC 7807).
type APIError struct {
	Title      string        `json:"title"`
	Status     int           `json:"status"`
	Errors     []ErrorDetail `json:"errors,omitempty"`
	RetryAfter int           `json:"-"`
}

func (e APIError) Error() string { return e.Title }

func NewBadRequest(detail string, params ...InvalidParam) APIError {
	return APIError{
		Title:  "Request validation failed",
		Status: 400,
		Errors: toErrorDetails(params, detail, "body", "bad_request"),
	}
}

func NewUnauthorized(detail string) APIError {
	return APIError{
		Title:  "Unauthorized",
		Status: 401,
		Errors: toErrorDetails(nil, detail, "header", "unauthorized"),
	}
}

func NewForbidden(detail string) APIError {
	return APIError{
		Title:  "Forbidden",
		Status: 403,
		Errors: toErrorDetails(nil, detail, "", "forbidden"),
	}
}

func NewNotFound(detail string) APIError {
	return APIError{
		Title:  "Resource Not Found",
		Status: 404,
		Errors: toErrorDetails(nil, detail, "path", "not_found"),
	}
}

func NewTooManyRequests(detail string, retryAfter float64) APIError {
	return APIError{
		Title:      "Too Many Requests",
		Status:     429,
		RetryAfter: int(math.Ceil(retryAfter)),
		Errors:     toErrorDetails(nil, detail, "", "rate_limited"),
	}
}

func NewInternalServerError(detail string) APIError {
	return APIError{
		Title:  "Internal Server Error",
		Status: 500,
		Errors: toErrorDetails(nil, detail, "", "internal_error"),
	}
}

// FromError maps the core error taxonomy to its HTTP-equivalent problem.
// The mapping is a contract: validation 400, auth 401, permission 403,
// absent 404, rate limit 429, storage failure 500.
func FromError(err error) APIError {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var rle *security.RateLimitError
	var sanErr *security.SanitizationError
	var storErr *storage.StorageError

	switch {
	case errors.Is(err, storage.ErrInvalidGUID),
		errors.Is(err, storage.ErrUnsupportedFormat),
		errors.Is(err, render.ErrInvalidParams):
		return NewBadRequest(err.Error())
	case errors.As(err, &sanErr):
		return NewBadRequest(sanErr.Error())
	case errors.Is(err, auth.ErrAuthentication):
		// Generic detail only; the precise reason stays in the audit log.
		return NewUnauthorized("authentication failed")
	case errors.Is(err, storage.ErrPermissionDenied):
		return NewForbidden("access to this resource is denied")
	case errors.Is(err, storage.ErrNotFound):
		return NewNotFound("image not found")
	case errors.As(err, &rle):
		detail := fmt.Sprintf("rate limit exceeded: %d requests per %ds", rle.Limit, rle.Window)
		return NewTooManyRequests(detail, rle.RetryAfter)
	case errors.As(err, &storErr):
		return NewInternalServerError("storage operation failed")
	default:
		return NewInternalServerError(err.Error())
	}
}

func toErrorDetails(params []InvalidParam, fallbackDetail, fallbackIn, fallbackCode string) []ErrorDetail {
	if len(params) == 0 {
		if fallbackDetail == "" {
			return nil
		}
		return []ErrorDetail{{In: fallbackIn, Code: fallbackCode, Detail: fallbackDetail}}
	}
	out := make([]ErrorDetail, 0, len(params))
	for _, p := range params {
		out = append(out, ErrorDetail{In: "body", Code: p.Name, Detail: p.Reason})
	}
	return out
}
