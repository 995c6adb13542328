package handlers

import (
	"errors"
	"log"

	"github.com/feliperodres/crm-wipsy-sub001/internal/core/tenant"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/whatsapp"
	"github.com/feliperodres/crm-wipsy-sub001/internal/services"
	"github.com/gofiber/fiber/v2"
)

// MetaWebhookHandler receives WhatsApp Cloud API webhooks: the GET
// subscription challenge and the POST event envelope.
type MetaWebhookHandler struct {
	resolver *tenant.Resolver
	ingest   *services.IngestService
}

func NewMetaWebhookHandler(resolver *tenant.Resolver, ingest *services.IngestService) *MetaWebhookHandler {
	return &MetaWebhookHandler{resolver: resolver, ingest: ingest}
}

// Verify godoc
// @Summary Meta webhook verification
// @Description Answers Meta's subscription challenge for a channel
// @Tags Webhooks
// @Produce plain
// @Param token path string true "Channel webhook token"
// @Param hub.mode query string true "Must be subscribe"
// @Param hub.verify_token query string true "Configured verify token"
// @Param hub.challenge query string true "Challenge to echo"
// @Success 200 {string} string
// @Failure 403 {object} map[string]interface{}
// @Router /webhooks/meta/{token} [get]
func (h *MetaWebhookHandler) Verify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	verifyToken := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	tc, err := h.resolver.ResolveToken(c.Params("token"))
	if err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "verification failed",
		})
	}

	if mode != "subscribe" || verifyToken == "" || verifyToken != tc.Channel.VerifyToken {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "verification failed",
		})
	}

	return c.SendString(challenge)
}

// HandleEvents godoc
// @Summary Meta webhook events
// @Description Receives message, echo and status events from the Cloud API
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param token path string true "Channel webhook token"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /webhooks/meta/{token} [post]
func (h *MetaWebhookHandler) HandleEvents(c *fiber.Ctx) error {
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

	var payload whatsapp.MetaWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid payload",
		})
	}

	// One envelope can carry several events; a failure on one must not
	// block the others, Meta redelivers the whole envelope otherwise.
	events := whatsapp.ParseMetaEvents(&payload)
	var firstErr error
	for i := range events {
		if err := h.ingest.HandleEvent(c.Context(), tc, &events[i]); err != nil {
			log.Printf("❌ Meta event processing failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return internalError(c, firstErr)
	}

	return c.JSON(fiber.Map{"success": true})
}
