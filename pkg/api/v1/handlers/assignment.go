package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sweeply/sweeply/internal/matching"
)

// AssignmentHandler handles HTTP requests for offer claims and rejections
type AssignmentHandler struct {
	coordinator *matching.Coordinator
}

// NewAssignmentHandler creates a new AssignmentHandler instance
func NewAssignmentHandler(coordinator *matching.Coordinator) *AssignmentHandler {
	return &AssignmentHandler{coordinator: coordinator}
}

// Claim lets a provider accept a pending offer. A 409 means the job is no
// longer available: somebody else claimed it, the offer expired, or the
// provider picked up an overlapping booking. Clients must not retry.
func (h *AssignmentHandler) Claim(c *fiber.Ctx) error {
	assignmentID, providerID, ok := h.params(c)
	if !ok {
		return nil
	}

	claimed, err := h.coordinator.Claim(c.Context(), assignmentID, providerID)
	if err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(claimed))
}

// Reject lets a provider decline a pending offer.
func (h *AssignmentHandler) Reject(c *fiber.Ctx) error {
	assignmentID, providerID, ok := h.params(c)
	if !ok {
		return nil
	}

	if err := h.coordinator.Reject(c.Context(), assignmentID, providerID); err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(nil))
}

func (h *AssignmentHandler) params(c *fiber.Ctx) (assignmentID, providerID uint, ok bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		_ = c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgInvalidAssignmentID))
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
