package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sweeply/sweeply/internal/services"
)

// ProviderHandler handles HTTP requests for provider operations
type ProviderHandler struct {
	service *services.Provider
}

// NewProviderHandler creates a new ProviderHandler instance
func NewProviderHandler(service *services.Provider) *ProviderHandler {
	return &ProviderHandler{service: service}
}

// Register onboards a provider and places them in the candidate pool.
func (h *ProviderHandler) Register(c *fiber.Ctx) error {
	var req services.RegisterProviderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgInvalidBody))
	}

	provider, err := h.service.Register(c.Context(), &req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(err.Error()))
	}
	return c.Status(fiber.StatusCreated).JSON(Success(provider))
}

// Get returns a single provider.
func (h *ProviderHandler) Get(c *fiber.Ctx) error {
	providerID, ok := h.idParam(c)
	if !ok {
		return nil
	}

	provider, err := h.service.Get(c.Context(), providerID)
	if err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(provider))
}

// List returns a page of providers; ?eligible=true restricts it to those
// currently able to receive offers.
func (h *ProviderHandler) List(c *fiber.Ctx) error {
	providers, err := h.service.List(c.Context(), c.QueryBool("eligible"), listOptions(c))
	if err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(providers))
}

// Verify marks a provider as verified.
func (h *ProviderHandler) Verify(c *fiber.Ctx) error {
	providerID, ok := h.idParam(c)
	if !ok {
		return nil
	}

	provider, err := h.service.Verify(c.Context(), providerID)
	if err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(provider))
}

// Deactivate takes a provider out of rotation.
func (h *ProviderHandler) Deactivate(c *fiber.Ctx) error {
	providerID, ok := h.idParam(c)
	if !ok {
		return nil
	}

	if err := h.service.Deactivate(c.Context(), providerID); err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(nil))
}

// UpdateLocation moves the provider's home base.
func (h *ProviderHandler) UpdateLocation(c *fiber.Ctx) error {
	providerID, ok := h.idParam(c)
	if !ok {
		return nil
	}

	var body struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgInvalidBody))
	}

	if err := h.service.UpdateLocation(c.Context(), providerID, body.Lat, body.Lon); err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(nil))
}

// Offers lists the provider's currently claimable offers.
func (h *ProviderHandler) Offers(c *fiber.Ctx) error {
	providerID, ok := h.idParam(c)
	if !ok {
		return nil
	}

	offers, err := h.service.Offers(c.Context(), providerID)
	if err != nil {
		return respondEngineError(c, err)
	}
	return c.JSON(Success(offers))
}

func (h *ProviderHandler) idParam(c *fiber.Ctx) (uint, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		_ = c.Status(fiber.StatusBadRequest).JSON(ErrInvalidInput(ErrMsgInvalidProviderID))
		return 0, false
	}
	return uint(id), true
}
