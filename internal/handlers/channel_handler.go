package handlers

import (
	"errors"
	"log"

	"github.com/feliperodres/crm-wipsy-sub001/internal/core/tenant"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/whatsapp"
	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/gofiber/fiber/v2"
)

// ChannelHandler serves channel pairing for direct (whatsmeow) channels.
type ChannelHandler struct {
	resolver *tenant.Resolver
	storeURL string
}

func NewChannelHandler(resolver *tenant.Resolver, storeURL string) *ChannelHandler {
	return &ChannelHandler{resolver: resolver, storeURL: storeURL}
}

// GetQRCode godoc
// @Summary Get channel pairing QR
// @Description Generate a login QR code for a direct WhatsApp channel
// @Tags Channels
// @Produce image/png
// @Param token path string true "Channel webhook token"
// @Success 200 {file} image/png
// @Failure 400 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /channels/{token}/qr [get]
func (h *ChannelHandler) GetQRCode(c *fiber.Ctx) error {
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

	if tc.Channel.Provider != models.ChannelProviderDirect {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "QR pairing only applies to direct channels",
		})
	}

	log.Printf("🔍 Generating QR for channel %s", tc.Channel.ID)

	qr, err := whatsapp.NewWhatsmeowProvider(h.storeURL).GenerateQR()
	if err != nil {
		log.Printf("❌ Failed to generate QR: %v", err)
		return internalError(c, err)
	}

	c.Set("Content-Type", "image/png")
	c.Set("Content-Disposition", "inline; filename=whatsapp-qr.png")
	return c.Send(qr)
}
