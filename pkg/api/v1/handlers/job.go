package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/sweeply/sweeply/internal/db/models"
	"github.com/sweeply/sweeply/internal/matching"
	"github.com/sweeply/sweeply/internal/services"
)

// JobHandler handles HTTP requests for booking operations
type JobHandler struct {
	service *services.Job
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(service *services.Job) *JobHandler {
	return &JobHandler{service: service}
}

// Create books a job and dispatches it to candidate providers. When no
// candidate exists the booking is accepted anyway and parked for manual
// review, signalled with 202.
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req services.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgInvalidBody))
	}

	job, err := h.service.Create(c.Context(), &req)
	if errors.Is(err, matching.ErrNoCandidates) {
		return c.Status(fiber.StatusAccepted).JSON(SlugResponse{
			Slug:  PendingSlug,
			Error: err.Error(),
			Data:  job,
		})
	}
	if errors.Is(err, matching.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(ErrNotFound(err.Error()))
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(err.Error()))
	}

	return c.Status(fiber.StatusCreated).JSON(Success(job))
}

// Get returns a single booking.
func (h *JobHandler) Get(c *fiber.Ctx) error {
	jobID, err := c.ParamsInt("id")
	if err != nil || jobID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgInvalidJobID))
	}

	job, err := h.service.Get(c.Context(), uint(jobID))
	if err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(job))
}

// List returns a page of bookings, optionally filtered by ?status=.
func (h *JobHandler) List(c *fiber.Ctx) error {
	var status models.JobStatus
	if raw := c.Query("status"); raw != "" {
		parsed, err := models.ParseJobStatus(raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgInvalidStatus))
		}
		status = parsed
	}

	jobs, err := h.service.List(c.Context(), status, listOptions(c))
	if err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(jobs))
}

// NeedsAttention returns the manual-review queue.
func (h *JobHandler) NeedsAttention(c *fiber.Ctx) error {
	jobs, err := h.service.ListNeedingAttention(c.Context(), listOptions(c))
	if err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(jobs))
}

// Redispatch re-runs matching for a booking, used by operators on the
// manual-review queue.
func (h *JobHandler) Redispatch(c *fiber.Ctx) error {
	jobID, err := c.ParamsInt("id")
	if err != nil || jobID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgInvalidJobID))
	}

	created, err := h.service.Redispatch(c.Context(), uint(jobID))
	if errors.Is(err, matching.ErrNoCandidates) {
		return c.Status(fiber.StatusAccepted).JSON(SlugResponse{Slug: PendingSlug, Error: err.Error()})
	}
	if err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(created))
}

// CheckIn records the provider's arrival at the job site.
func (h *JobHandler) CheckIn(c *fiber.Ctx) error {
	jobID, providerID, ok := h.jobProviderParams(c)
	if !ok {
		return nil
	}

	job, err := h.service.CheckIn(c.Context(), jobID, providerID)
	if err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(job))
}

// CheckOut records service completion.
func (h *JobHandler) CheckOut(c *fiber.Ctx) error {
	jobID, providerID, ok := h.jobProviderParams(c)
	if !ok {
		return nil
	}

	job, err := h.service.CheckOut(c.Context(), jobID, providerID)
	if err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(job))
}

// Cancel withdraws a booking before completion.
func (h *JobHandler) Cancel(c *fiber.Ctx) error {
	jobID, err := c.ParamsInt("id")
	if err != nil || jobID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgInvalidJobID))
	}

	job, err := h.service.Cancel(c.Context(), uint(jobID))
	if err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(job))
}

// Rate folds a customer rating for a completed booking into the serving
// provider's record.
func (h *JobHandler) Rate(c *fiber.Ctx) error {
	jobID, err := c.ParamsInt("id")
	if err != nil || jobID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgInvalidJobID))
	}

	var body struct {
		Rating float64 `json:"rating"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgInvalidBody))
	}
	if body.Rating < 1 || body.Rating > 5 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgInvalidRating))
	}

	provider, err := h.service.Rate(c.Context(), uint(jobID), body.Rating)
	if err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(provider))
}

// jobProviderParams parses the job id path param and the provider id body
// field shared by the check-in/check-out endpoints. On failure the response
// has already been written and ok is false.
func (h *JobHandler) jobProviderParams(c *fiber.Ctx) (jobID, providerID uint, ok bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		_ = c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgInvalidJobID))
		return 0, 0, false
	}

	var body struct {
		ProviderID uint `json:"provider_id"`
	}
	if err := c.BodyParser(&body); err != nil || body.ProviderID == 0 {
		_ = c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgInvalidProviderID))
		return 0, 0, false
	}
	return uint(id), body.ProviderID, true
}

// listOptions reads the shared pagination query params.
func listOptions(c *fiber.Ctx) *models.ListOptions {
	return &models.ListOptions{
		Limit:  c.QueryInt("limit"),
		Offset: c.QueryInt("offset"),
	}
}
