package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/feliperodres/crm-wipsy-sub001/internal/core/commerce"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/tenant"
	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/feliperodres/crm-wipsy-sub001/internal/repositories"
	"github.com/feliperodres/crm-wipsy-sub001/internal/shared/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrCustomerNotFound maps to a 404: an order instruction referencing a
// phone we have never talked to is a stale or malformed callback.
var ErrCustomerNotFound = errors.New("customer not found")

// ValidationError maps to a 400 with a descriptive message.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// ShopifyPusher is the slice of the commerce client the order service
// needs; injectable so tests can fake the downstream push.
type ShopifyPusher interface {
	CreateOrder(ctx context.Context, push *commerce.OrderPush) (string, error)
}

// ShopifyFactory builds a pusher from tenant credentials.
type ShopifyFactory func(domain, token string) ShopifyPusher

// OrderInstructionItem is one line of an agent order instruction. The
// product reference may be any identifier the agent last saw.
type OrderInstructionItem struct {
	ProductRef string  `json:"product_ref"`
	Name       string  `json:"name"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"`
}

// OrderInstruction is the order-creation payload from the agent.
type OrderInstruction struct {
	CustomerPhone string                 `json:"customer_phone"`
	CustomerName  string                 `json:"customer_name,omitempty"`
	Items         []OrderInstructionItem `json:"items"`

	ShippingRateID   string `json:"shipping_rate_id,omitempty"`
	ShippingRateName string `json:"shipping_rate_name,omitempty"`

	PaymentMethod string `json:"payment_method,omitempty"`
	Notes         string `json:"notes,omitempty"`

	Address  string `json:"address,omitempty"`
	City     string `json:"city,omitempty"`
	Province string `json:"province,omitempty"`
	ZipCode  string `json:"zip_code,omitempty"`
}

// OrderService materializes agent order instructions: validation, product
// resolution, totals, then best-effort side effects.
type OrderService struct {
	tenants   repositories.TenantRepo
	customers repositories.CustomerRepo
	chats     repositories.ChatRepo
	products  repositories.ProductRepo
	orders    repositories.OrderRepo

	agent      *AgentService
	shopifyFor ShopifyFactory
}

func NewOrderService(
	tenants repositories.TenantRepo,
	customers repositories.CustomerRepo,
	chats repositories.ChatRepo,
	products repositories.ProductRepo,
	orders repositories.OrderRepo,
	agentSvc *AgentService,
	shopifyFor ShopifyFactory,
) *OrderService {
	if shopifyFor == nil {
		shopifyFor = func(domain, token string) ShopifyPusher {
			return commerce.NewShopifyClient(domain, token)
		}
	}

	return &OrderService{
		tenants:    tenants,
		customers:  customers,
		chats:      chats,
		products:   products,
		orders:     orders,
		agent:      agentSvc,
		shopifyFor: shopifyFor,
	}
}

// CreateFromAgent validates and persists one order. Validation failures
// never leave a partial order behind; side-effect failures after the
// write are logged and swallowed.
func (s *OrderService) CreateFromAgent(ctx context.Context, tc *tenant.Context, instr *OrderInstruction) (*models.Order, error) {
	if len(instr.Items) == 0 {
		return nil, &ValidationError{Msg: "order has no items"}
	}
	for _, item := range instr.Items {
		if item.Quantity <= 0 {
			return nil, &ValidationError{Msg: fmt.Sprintf("invalid quantity for %q", item.Name)}
		}
	}

	rate, err := s.resolveShippingRate(tc, instr)
	if err != nil {
		return nil, err
	}

	customer, err := s.customers.GetByPhone(tc.Tenant.ID, instr.CustomerPhone)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}

	items := make([]models.OrderItem, 0, len(instr.Items))
	var subtotal float64
	for _, line := range instr.Items {
		product, err := s.resolveProduct(tc.Tenant.ID, &line)
		if err != nil {
			return nil, err
		}

		price := line.Price
		if price == 0 {
			price = product.Price
		}
		lineSubtotal := price * float64(line.Quantity)
		subtotal += lineSubtotal

		items = append(items, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   price,
			Subtotal:    lineSubtotal,
		})
	}

	order := &models.Order{
		TenantID:       tc.Tenant.ID,
		CustomerID:     customer.ID,
		OrderNumber:    newOrderNumber(),
		Status:         models.OrderStatusPending,
		Source:         models.OrderSourceAgent,
		Subtotal:       subtotal,
		ShippingCost:   rate.Price,
		ShippingRateID: &rate.ID,
		Total:          subtotal + rate.Price,
		PaymentMethod:  instr.PaymentMethod,
		Notes:          instr.Notes,
		Address:        instr.Address,
		City:           instr.City,
		Province:       instr.Province,
		ZipCode:        instr.ZipCode,
	}

	if err := s.orders.Create(order, items); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}
	order.Items = items

	utils.LogInfo("🧾 order created", map[string]interface{}{
		"order_number": order.OrderNumber,
		"customer_id":  customer.ID,
		"total":        order.Total,
	})

	s.backfillCustomerAddress(customer, instr)
	s.runSideEffects(ctx, tc, customer, order, rate)

	return order, nil
}

// resolveShippingRate enforces the mandatory tariff: matched by id or by
// case/whitespace-insensitive name, otherwise the error lists what the
// tenant actually offers.
func (s *OrderService) resolveShippingRate(tc *tenant.Context, instr *OrderInstruction) (*models.ShippingRate, error) {
	rates, err := s.tenants.ListShippingRates(tc.Tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load shipping rates: %w", err)
	}

	if instr.ShippingRateID != "" {
		if id, err := uuid.Parse(instr.ShippingRateID); err == nil {
			for i := range rates {
				if rates[i].ID == id {
					return &rates[i], nil
				}
			}
		} else {
			// Agents sometimes put the display name in the id field.
			for i := range rates {
				if rates[i].MatchesName(instr.ShippingRateID) {
					return &rates[i], nil
				}
			}
		}
	}
	if instr.ShippingRateName != "" {
		for i := range rates {
			if rates[i].MatchesName(instr.ShippingRateName) {
				return &rates[i], nil
			}
		}
	}

	names := make([]string, 0, len(rates))
	for _, r := range rates {
		names = append(names, r.Name)
	}
	ref := instr.ShippingRateName
	if ref == "" {
		ref = instr.ShippingRateID
	}
	if ref == "" {
		return nil, &ValidationError{Msg: fmt.Sprintf("shipping rate is required; available: %s", strings.Join(names, ", "))}
	}
	return nil, &ValidationError{Msg: fmt.Sprintf("unknown shipping rate %q; available: %s", ref, strings.Join(names, ", "))}
}

// resolveProduct runs the identifier cascade, first match wins. A miss on
// every step creates an inactive placeholder so a catalog gap never
// blocks the order.
func (s *OrderService) resolveProduct(tenantID uuid.UUID, line *OrderInstructionItem) (*models.Product, error) {
	ref := strings.TrimSpace(line.ProductRef)

	if ref != "" {
		if p, err := s.products.GetByVariantID(tenantID, ref); err == nil {
			return p, nil
		}
		if p, err := s.products.GetByShopifyVariantID(tenantID, ref); err == nil {
			return p, nil
		}
		if id, err := uuid.Parse(ref); err == nil {
			if p, err := s.products.GetByID(tenantID, id); err == nil {
				return p, nil
			}
		}
		if p, err := s.products.GetByShopifyProductID(tenantID, ref); err == nil {
			return p, nil
		}
	}
	if line.Name != "" {
		if p, err := s.products.GetByName(tenantID, line.Name); err == nil {
			return p, nil
		}
	}

	name := line.Name
	if name == "" {
		name = ref
	}
	if name == "" {
		return nil, &ValidationError{Msg: "order item has neither product reference nor name"}
	}

	placeholder := &models.Product{
		TenantID: tenantID,
		Name:     name,
		Price:    line.Price,
		IsActive: false,
	}
	if err := s.products.Create(placeholder); err != nil {
		return nil, fmt.Errorf("failed to create placeholder product: %w", err)
	}

	utils.LogWarn("placeholder product created for unresolved reference", map[string]interface{}{
		"tenant_id": tenantID,
		"name":      name,
		"ref":       ref,
	})
	return placeholder, nil
}

// backfillCustomerAddress fills empty customer address fields from the
// order, never overwriting what is already known.
func (s *OrderService) backfillCustomerAddress(customer *models.Customer, instr *OrderInstruction) {
	changed := false
	if customer.Address == "" && instr.Address != "" {
		customer.Address = instr.Address
		changed = true
	}
	if customer.City == "" && instr.City != "" {
		customer.City = instr.City
		changed = true
	}
	if customer.Province == "" && instr.Province != "" {
		customer.Province = instr.Province
		changed = true
	}
	if customer.ZipCode == "" && instr.ZipCode != "" {
		customer.ZipCode = instr.ZipCode
		changed = true
	}
	if customer.Name == "" && instr.CustomerName != "" {
		customer.Name = instr.CustomerName
		changed = true
	}
	if !changed {
		return
	}
	if err := s.customers.Update(customer); err != nil {
		utils.LogError("failed to backfill customer address", err, map[string]interface{}{
			"customer_id": customer.ID,
		})
	}
}

// runSideEffects fires the post-order actions. Each is independently
// best-effort: a failure is logged and the order stays created.
func (s *OrderService) runSideEffects(ctx context.Context, tc *tenant.Context, customer *models.Customer, order *models.Order, rate *models.ShippingRate) {
	chat, err := s.chats.FindOrCreate(tc.Tenant.ID, customer.ID, tc.Channel.ID)
	if err != nil {
		utils.LogError("side effect: failed to resolve chat", err, nil)
		chat = nil
	}

	if chat != nil {
		text := s.confirmationText(customer, order, rate)
		if _, err := s.agent.SendAgentText(ctx, tc.Tenant, tc.Channel, customer, chat, text); err != nil {
			utils.LogError("side effect: confirmation send failed", err, map[string]interface{}{
				"order_number": order.OrderNumber,
			})
		}
	}

	if err := s.customers.AddTag(customer.ID, "new order"); err != nil {
		utils.LogError("side effect: customer tagging failed", err, nil)
	}

	if tc.Tenant.ShopifyDomain != "" && tc.Tenant.ShopifyToken != "" {
		s.pushToShopify(ctx, tc, customer, order)
	}

	s.notifyOperator(ctx, tc, customer, order)
}

func (s *OrderService) confirmationText(customer *models.Customer, order *models.Order, rate *models.ShippingRate) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Order %s confirmed! 🎉\n\n", order.OrderNumber)
	for _, item := range order.Items {
		fmt.Fprintf(&sb, "• %dx %s — %.2f\n", item.Quantity, item.ProductName, item.Subtotal)
	}
	fmt.Fprintf(&sb, "\nShipping (%s): %.2f\n", rate.Name, order.ShippingCost)
	fmt.Fprintf(&sb, "Total: %.2f\n", order.Total)
	if order.PaymentMethod != "" {
		fmt.Fprintf(&sb, "Payment: %s\n", order.PaymentMethod)
	}
	if order.Address != "" {
		fmt.Fprintf(&sb, "Delivery to: %s", order.Address)
		if order.City != "" {
			fmt.Fprintf(&sb, ", %s", order.City)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func (s *OrderService) pushToShopify(ctx context.Context, tc *tenant.Context, customer *models.Customer, order *models.Order) {
	pusher := s.shopifyFor(tc.Tenant.ShopifyDomain, tc.Tenant.ShopifyToken)

	lines := make([]commerce.OrderLineItem, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, commerce.OrderLineItem{
			Title:    item.ProductName,
			Quantity: item.Quantity,
			Price:    item.UnitPrice,
		})
	}

	shopifyID, err := pusher.CreateOrder(ctx, &commerce.OrderPush{
		Phone:         customer.Phone,
		Note:          fmt.Sprintf("%s (via WhatsApp agent)", order.OrderNumber),
		Tags:          "whatsapp-agent",
		LineItems:     lines,
		TotalShipping: order.ShippingCost,
		Address: commerce.PushAddress{
			Name:     customer.Name,
			Address1: order.Address,
			City:     order.City,
			Province: order.Province,
			Zip:      order.ZipCode,
			Phone:    customer.Phone,
		},
	})
	if err != nil {
		utils.LogError("side effect: shopify push failed", err, map[string]interface{}{
			"order_number": order.OrderNumber,
		})
		return
	}

	utils.LogInfo("🛒 order pushed to shopify", map[string]interface{}{
		"order_number": order.OrderNumber,
		"shopify_id":   shopifyID,
	})
}

// notifyOperator pings the tenant's own number so a human sees new
// orders without watching a dashboard.
func (s *OrderService) notifyOperator(ctx context.Context, tc *tenant.Context, customer *models.Customer, order *models.Order) {
	if tc.Tenant.Phone == "" {
		return
	}

	provider, err := s.agent.providerFor(tc.Channel)
	if err != nil {
		utils.LogError("side effect: operator notification failed", err, nil)
		return
	}

	text := fmt.Sprintf("New order %s from %s (%s): %.2f",
		order.OrderNumber, customer.Name, customer.Phone, order.Total)
	if _, err := provider.SendText(ctx, tc.Tenant.Phone, text); err != nil {
		utils.LogError("side effect: operator notification failed", err, map[string]interface{}{
			"order_number": order.OrderNumber,
		})
	}
}

func newOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", time.Now().Format("20060102"), suffix)
}
