package handlers

import (
	"errors"
	"log"

	"github.com/feliperodres/crm-wipsy-sub001/internal/core/tenant"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/whatsapp"
	"github.com/feliperodres/crm-wipsy-sub001/internal/repositories"
	"github.com/feliperodres/crm-wipsy-sub001/internal/services"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// agentEvent is the asynchronous agent reply envelope: a send
// instruction or an order-creation instruction. Anything else is a 400,
// never silently ignored.
type agentEvent struct {
	Type string `json:"type"` // "message" or "order"

	// message fields
	To       string `json:"to,omitempty"`
	Text     string `json:"text,omitempty"`
	MediaURL string `json:"media_url,omitempty"`
	Caption  string `json:"caption,omitempty"`

	// order field
	Order *services.OrderInstruction `json:"order,omitempty"`
}

// AgentHandler receives the external agent's replies.
type AgentHandler struct {
	resolver  *tenant.Resolver
	agent     *services.AgentService
	orders    *services.OrderService
	customers repositories.CustomerRepo
	chats     repositories.ChatRepo
}

func NewAgentHandler(
	resolver *tenant.Resolver,
	agentSvc *services.AgentService,
	orders *services.OrderService,
	customers repositories.CustomerRepo,
	chats repositories.ChatRepo,
) *AgentHandler {
	return &AgentHandler{
		resolver:  resolver,
		agent:     agentSvc,
		orders:    orders,
		customers: customers,
		chats:     chats,
	}
}

// HandleEvent godoc
// @Summary Agent reply events
// @Description Receives send-message or create-order instructions from the agent
// @Tags Agent
// @Accept json
// @Produce json
// @Param token path string true "Channel webhook token"
// @Param event body agentEvent true "Agent instruction"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 500 {object} map[string]interface{}
// @Router /agent/{token}/events [post]
func (h *AgentHandler) HandleEvent(c *fiber.Ctx) error {
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

	var evt agentEvent
	if err := c.BodyParser(&evt); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "invalid payload",
		})
	}

	switch evt.Type {
	case "message":
		return h.handleSend(c, tc, &evt)
	case "order":
		return h.handleOrder(c, tc, &evt)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "unknown event type, expected \"message\" or \"order\"",
		})
	}
}

func (h *AgentHandler) handleSend(c *fiber.Ctx, tc *tenant.Context, evt *agentEvent) error {
	if evt.To == "" || (evt.Text == "" && evt.MediaURL == "") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "message event requires to and text or media_url",
		})
	}

	customer, err := h.customers.GetByPhone(tc.Tenant.ID, whatsapp.NormalizePhone(evt.To))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "customer not found",
		})
	}
	if err != nil {
		return internalError(c, err)
	}

	chat, err := h.chats.FindOrCreate(tc.Tenant.ID, customer.ID, tc.Channel.ID)
	if err != nil {
		return internalError(c, err)
	}

	if evt.MediaURL != "" {
		_, err = h.agent.SendAgentMedia(c.Context(), tc.Tenant, tc.Channel, customer, chat, evt.MediaURL, evt.Caption)
	} else {
		_, err = h.agent.SendAgentText(c.Context(), tc.Tenant, tc.Channel, customer, chat, evt.Text)
	}
	if err != nil {
		log.Printf("❌ agent send failed: %v", err)
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

func (h *AgentHandler) handleOrder(c *fiber.Ctx, tc *tenant.Context, evt *agentEvent) error {
	if evt.Order == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "order event requires an order payload",
		})
	}

	order, err := h.orders.CreateFromAgent(c.Context(), tc, evt.Order)
	if err != nil {
		var verr *services.ValidationError
		switch {
		case errors.As(err, &verr):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   verr.Msg,
			})
		case errors.Is(err, services.ErrCustomerNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "customer not found",
			})
		default:
			log.Printf("❌ order creation failed: %v", err)
			return internalError(c, err)
		}
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.Total,
	})
}
