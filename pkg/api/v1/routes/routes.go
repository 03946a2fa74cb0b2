// Package routes wires the v1 API endpoints to their handlers.
package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sweeply/sweeply/pkg/api/v1/handlers"
)

// Handlers bundles the handler instances the v1 routes need.
type Handlers struct {
	Jobs        *handlers.JobHandler
	Providers   *handlers.ProviderHandler
	Assignments *handlers.AssignmentHandler
}

// SetupRoutes configures all the v1 routes
func SetupRoutes(router fiber.Router, h Handlers) {
	// Booking routes
	jobs := router.Group("/jobs")
	jobs.Post("/", h.Jobs.Create)
	jobs.Get("/", h.Jobs.List)
	jobs.Get("/attention", h.Jobs.NeedsAttention)
	jobs.Get("/:id", h.Jobs.Get)
	jobs.Post("/:id/dispatch", h.Jobs.Redispatch)
	jobs.Post("/:id/checkin", h.Jobs.CheckIn)
	jobs.Post("/:id/checkout", h.Jobs.CheckOut)
	jobs.Post("/:id/cancel", h.Jobs.Cancel)
	jobs.Post("/:id/rating", h.Jobs.Rate)

	// Provider routes
	providers := router.Group("/providers")
	providers.Post("/", h.Providers.Register)
	providers.Get("/", h.Providers.List)
	providers.Get("/:id", h.Providers.Get)
	providers.Post("/:id/verify", h.Providers.Verify)
	providers.Post("/:id/deactivate", h.Providers.Deactivate)
	providers.Put("/:id/location", h.Providers.UpdateLocation)
	providers.Get("/:id/offers", h.Providers.Offers)

	// Offer routes
	assignments := router.Group("/assignments")
	assignments.Post("/:id/claim", h.Assignments.Claim)
	assignments.Post("/:id/reject", h.Assignments.Reject)
}

// Register registers the v1 routes
func Register(app *fiber.App, h Handlers) {
	// API v1 routes
	v1Group := app.Group("/api/v1")
	SetupRoutes(v1Group, h)
}
