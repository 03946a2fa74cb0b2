// Package handlers provides the HTTP request handling for the v1 API.
package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/sweeply/sweeply/internal/matching"
)

// Slug is a machine-readable response category so clients can branch
// without parsing error strings.
type Slug string

// Response slugs
const (
	SuccessSlug      Slug = "success"
	InvalidInputSlug Slug = "invalid-input"
	NotFoundSlug     Slug = "not-found"
	ConflictSlug     Slug = "conflict"
	PendingSlug      Slug = "pending-review"
	ServerErrorSlug  Slug = "server-error"
)

// SlugResponse is the envelope for every v1 API response.
type SlugResponse struct {
	Slug  Slug        `json:"slug"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// Success returns a SlugResponse carrying data.
func Success(data interface{}) SlugResponse {
	return SlugResponse{Slug: SuccessSlug, Data: data}
}

// ErrInvalidInput returns an invalid-input SlugResponse.
func ErrInvalidInput(msg string) SlugResponse {
	return SlugResponse{Slug: InvalidInputSlug, Error: msg}
}

// ErrNotFound returns a not-found SlugResponse.
func ErrNotFound(msg string) SlugResponse {
	return SlugResponse{Slug: NotFoundSlug, Error: msg}
}

// ErrConflict returns a conflict SlugResponse.
func ErrConflict(msg string) SlugResponse {
	return SlugResponse{Slug: ConflictSlug, Error: msg}
}

// ErrServer returns a server-error SlugResponse.
func ErrServer(msg string) SlugResponse {
	return SlugResponse{Slug: ServerErrorSlug, Error: msg}
}

// respondEngineError maps the engine error taxonomy onto HTTP statuses:
// missing resources are 404, lost races and stale transitions are 409, and
// anything else is a 500.
func respondEngineError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, matching.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrNotFound(err.Error()))
	case errors.Is(err, matching.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(ErrConflict(matching.ErrConflict.Error()))
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(ErrServer(err.Error()))
	}
}
