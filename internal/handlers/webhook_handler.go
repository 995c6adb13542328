package handlers

import (
	"errors"
	"log"

	"github.com/feliperodres/crm-wipsy-sub001/internal/core/tenant"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/whatsapp"
	"github.com/feliperodres/crm-wipsy-sub001/internal/services"
	"github.com/gofiber/fiber/v2"
)

// WebhookHandler receives BSP-gateway webhooks. The opaque URL token
// identifies the channel; duplicates and unknown event types still get a
// 200 so the gateway stops retrying.
type WebhookHandler struct {
	resolver *tenant.Resolver
	ingest   *services.IngestService
}

func NewWebhookHandler(resolver *tenant.Resolver, ingest *services.IngestService) *WebhookHandler {
	return &WebhookHandler{resolver: resolver, ingest: ingest}
}

// HandleBSP godoc
// @Summary BSP webhook
// @Description Receives message, echo and ack events from a BSP gateway
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param token path string true "Channel webhook token"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /webhooks/bsp/{token} [post]
func (h *WebhookHandler) HandleBSP(c *fiber.Ctx) error {
	tc, err := h.resolver.ResolveToken(c.Params("token"))
	if err != nil {
		if errors.Is(err, tenant.ErrUnknownToken) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "unknown webhook token",
			})
		}
		return internalError(c, err)
	}

	var payload whatsapp.BSPWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid payload",
		})
	}

	evt := whatsapp.ParseBSPEvent(&payload)
	if err := h.ingest.HandleEvent(c.Context(), tc, &evt); err != nil {
		log.Printf("❌ BSP webhook processing failed: %v", err)
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

func internalError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}
