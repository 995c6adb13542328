package services

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/google/uuid"
)

func seedRates(env *testEnv) {
	env.tenants.rates = []models.ShippingRate{
		{ID: uuid.New(), TenantID: env.tenant.ID, Name: "Reguler", Price: 15000},
		{ID: uuid.New(), TenantID: env.tenant.ID, Name: "Envio Express", Price: 30000},
	}
}

func baseInstruction(items ...OrderInstructionItem) *OrderInstruction {
	return &OrderInstruction{
		CustomerPhone:    "628111222333",
		Items:            items,
		ShippingRateName: "Reguler",
		PaymentMethod:    "transfer",
		Address:          "Jl. Merdeka 1",
		City:             "Bandung",
	}
}

func TestCreateFromAgent_Validation(t *testing.T) {
	env := newTestEnv(t)
	seedRates(env)
	env.seedCustomer(t, "628111222333")

	t.Run("no items", func(t *testing.T) {
		_, err := env.orderS.CreateFromAgent(context.Background(), env.tc(), baseInstruction())
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("err = %v, want validation error", err)
		}
	})

	t.Run("zero quantity", func(t *testing.T) {
		instr := baseInstruction(OrderInstructionItem{Name: "Sepatu", Quantity: 0, Price: 100})
		_, err := env.orderS.CreateFromAgent(context.Background(), env.tc(), instr)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("err = %v, want validation error", err)
		}
	})

	t.Run("unknown shipping rate lists what exists", func(t *testing.T) {
		instr := baseInstruction(OrderInstructionItem{Name: "Sepatu", Quantity: 1, Price: 100})
		instr.ShippingRateName = "Teleport"
		_, err := env.orderS.CreateFromAgent(context.Background(), env.tc(), instr)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("err = %v", err)
		}
		if !strings.Contains(verr.Msg, "Teleport") || !strings.Contains(verr.Msg, "Reguler") || !strings.Contains(verr.Msg, "Envio Express") {
			t.Errorf("message should name the bad rate and the available ones: %q", verr.Msg)
		}
	})

	t.Run("missing shipping rate", func(t *testing.T) {
		instr := baseInstruction(OrderInstructionItem{Name: "Sepatu", Quantity: 1, Price: 100})
		instr.ShippingRateName = ""
		_, err := env.orderS.CreateFromAgent(context.Background(), env.tc(), instr)
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("err = %v", err)
		}
		if !strings.Contains(verr.Msg, "required") {
			t.Errorf("msg = %q", verr.Msg)
		}
	})

	t.Run("unknown customer", func(t *testing.T) {
		instr := baseInstruction(OrderInstructionItem{Name: "Sepatu", Quantity: 1, Price: 100})
		instr.CustomerPhone = "628000000000"
		_, err := env.orderS.CreateFromAgent(context.Background(), env.tc(), instr)
		if !errors.Is(err, ErrCustomerNotFound) {
			t.Fatalf("err = %v, want ErrCustomerNotFound", err)
		}
	})

	if len(env.orders.orders) != 0 {
		t.Error("no validation failure may leave a partial order behind")
	}
}

func TestResolveShippingRate_ByIDAndByName(t *testing.T) {
	env := newTestEnv(t)
	seedRates(env)
	env.seedCustomer(t, "628111222333")

	t.Run("by id", func(t *testing.T) {
		instr := baseInstruction(OrderInstructionItem{Name: "Sepatu", Quantity: 1, Price: 100})
		instr.ShippingRateName = ""
		instr.ShippingRateID = env.tenants.rates[1].ID.String()
		order, err := env.orderS.CreateFromAgent(context.Background(), env.tc(), instr)
		if err != nil {
			t.Fatal(err)
		}
		if order.ShippingCost != 30000 {
			t.Errorf("ShippingCost = %v", order.ShippingCost)
		}
	})

	t.Run("by name, case and whitespace insensitive", func(t *testing.T) {
		instr := baseInstruction(OrderInstructionItem{Name: "Sepatu", Quantity: 1, Price: 100})
		instr.ShippingRateName = "  envio   EXPRESS "
		order, err := env.orderS.CreateFromAgent(context.Background(), env.tc(), instr)
		if err != nil {
			t.Fatal(err)
		}
		if order.ShippingCost != 30000 {
			t.Errorf("ShippingCost = %v", order.ShippingCost)
		}
	})

	t.Run("name supplied in the id field", func(t *testing.T) {
		instr := baseInstruction(OrderInstructionItem{Name: "Sepatu", Quantity: 1, Price: 100})
		instr.ShippingRateName = ""
		instr.ShippingRateID = "envio express"
		order, err := env.orderS.CreateFromAgent(context.Background(), env.tc(), instr)
		if err != nil {
			t.Fatal(err)
		}
		if order.ShippingCost != 30000 {
			t.Errorf("ShippingCost = %v", order.ShippingCost)
		}
	})
}

func TestResolveProduct_Cascade(t *testing.T) {
	env := newTestEnv(t)
	seedRates(env)
	env.seedCustomer(t, "628111222333")

	byVariant := &models.Product{ID: uuid.New(), TenantID: env.tenant.ID, Name: "Sneaker A", VariantID: "VAR-1", Price: 100}
	byShopifyVariant := &models.Product{ID: uuid.New(), TenantID: env.tenant.ID, Name: "Sneaker B", ShopifyVariantID: "41234", Price: 200}
	byID := &models.Product{ID: uuid.New(), TenantID: env.tenant.ID, Name: "Sneaker C", Price: 300}
	byShopifyProduct := &models.Product{ID: uuid.New(), TenantID: env.tenant.ID, Name: "Sneaker D", ShopifyProductID: "9999", Price: 400}
	byName := &models.Product{ID: uuid.New(), TenantID: env.tenant.ID, Name: "Sneaker E", Price: 500}
	env.products.products = []*models.Product{byVariant, byShopifyVariant, byID, byShopifyProduct, byName}

	cases := []struct {
		name  string
		line  OrderInstructionItem
		want  uuid.UUID
		price float64
	}{
		{"variant id", OrderInstructionItem{ProductRef: "VAR-1", Quantity: 1}, byVariant.ID, 100},
		{"shopify variant id", OrderInstructionItem{ProductRef: "41234", Quantity: 1}, byShopifyVariant.ID, 200},
		{"internal uuid", OrderInstructionItem{ProductRef: byID.ID.String(), Quantity: 1}, byID.ID, 300},
		{"shopify product id", OrderInstructionItem{ProductRef: "9999", Quantity: 1}, byShopifyProduct.ID, 400},
		{"name", OrderInstructionItem{Name: "Sneaker E", Quantity: 1}, byName.ID, 500},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			order, err := env.orderS.CreateFromAgent(context.Background(), env.tc(), baseInstruction(c.line))
			if err != nil {
				t.Fatal(err)
			}
			items := env.orders.items[order.ID]
			if len(items) != 1 {
				t.Fatalf("items = %+v", items)
			}
			if items[0].ProductID != c.want {
				t.Errorf("resolved product %s, want %s", items[0].ProductID, c.want)
			}
			// No line price given, the catalog price applies.
			if items[0].UnitPrice != c.price {
				t.Errorf("UnitPrice = %v, want %v", items[0].UnitPrice, c.price)
			}
		})
	}

	t.Run("miss creates inactive placeholder", func(t *testing.T) {
		line := OrderInstructionItem{Name: "Kaos Polos", Quantity: 2, Price: 75}
		order, err := env.orderS.CreateFromAgent(context.Background(), env.tc(), baseInstruction(line))
		if err != nil {
			t.Fatal(err)
		}
		if len(env.products.created) != 1 {
			t.Fatalf("created = %+v", env.products.created)
		}
		placeholder := env.products.created[0]
		if placeholder.IsActive {
			t.Error("placeholder must be inactive")
		}
		if placeholder.Name != "Kaos Polos" || placeholder.Price != 75 {
			t.Errorf("placeholder = %+v", placeholder)
		}
		items := env.orders.items[order.ID]
		if items[0].ProductID != placeholder.ID {
			t.Error("the order line should reference the placeholder")
		}
	})

	t.Run("no reference and no name", func(t *testing.T) {
		_, err := env.orderS.CreateFromAgent(context.Background(), env.tc(), baseInstruction(OrderInstructionItem{Quantity: 1}))
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestCreateFromAgent_Totals(t *testing.T) {
	env := newTestEnv(t)
	seedRates(env)
	env.seedCustomer(t, "628111222333")

	rng := rand.New(rand.NewSource(42))
	var lines []OrderInstructionItem
	var wantSubtotal float64
	for i := 0; i < 5; i++ {
		qty := rng.Intn(4) + 1
		price := float64(rng.Intn(90000)+10000) / 100
		lines = append(lines, OrderInstructionItem{
			Name:     "Item",
			Quantity: qty,
			Price:    price,
		})
		wantSubtotal += price * float64(qty)
	}
	// All lines share a name, so after the first placeholder the rest
	// resolve to it; prices stay per-line.
	order, err := env.orderS.CreateFromAgent(context.Background(), env.tc(), baseInstruction(lines...))
	if err != nil {
		t.Fatal(err)
	}

	if order.Subtotal != wantSubtotal {
		t.Errorf("Subtotal = %v, want %v", order.Subtotal, wantSubtotal)
	}
	if order.ShippingCost != 15000 {
		t.Errorf("ShippingCost = %v", order.ShippingCost)
	}
	if order.Total != wantSubtotal+15000 {
		t.Errorf("Total = %v, want subtotal plus shipping", order.Total)
	}
	if !strings.HasPrefix(order.OrderNumber, "ORD-") {
		t.Errorf("OrderNumber = %q", order.OrderNumber)
	}
	if order.Status != models.OrderStatusPending || order.Source != models.OrderSourceAgent {
		t.Errorf("status/source = %q/%q", order.Status, order.Source)
	}
}

func TestCreateFromAgent_SideEffects(t *testing.T) {
	env := newTestEnv(t)
	seedRates(env)
	customer, _ := env.seedCustomer(t, "628111222333")
	env.tenant.ShopifyDomain = "toko.myshopify.com"
	env.tenant.ShopifyToken = "shpat_test"

	instr := baseInstruction(OrderInstructionItem{Name: "Sepatu", Quantity: 2, Price: 150})
	order, err := env.orderS.CreateFromAgent(context.Background(), env.tc(), instr)
	if err != nil {
		t.Fatal(err)
	}

	// Confirmation to the customer plus the operator ping.
	if len(env.provider.sent) != 2 {
		t.Fatalf("sent = %+v", env.provider.sent)
	}
	confirmation := env.provider.sent[0]
	if confirmation.To != customer.Phone || !strings.Contains(confirmation.Text, order.OrderNumber) {
		t.Errorf("confirmation = %+v", confirmation)
	}
	operatorPing := env.provider.sent[1]
	if operatorPing.To != env.tenant.Phone {
		t.Errorf("operator ping went to %q", operatorPing.To)
	}

	if tags := env.customers.tags[customer.ID]; len(tags) != 1 || tags[0] != "new order" {
		t.Errorf("tags = %v", tags)
	}

	if len(env.shopify.pushes) != 1 {
		t.Fatalf("pushes = %+v", env.shopify.pushes)
	}
	push := env.shopify.pushes[0]
	if push.Phone != customer.Phone || len(push.LineItems) != 1 {
		t.Errorf("push = %+v", push)
	}
	if push.LineItems[0].Quantity != 2 || push.LineItems[0].Price != 150 {
		t.Errorf("line = %+v", push.LineItems[0])
	}
}

func TestCreateFromAgent_SideEffectFailureKeepsOrder(t *testing.T) {
	env := newTestEnv(t)
	seedRates(env)
	env.seedCustomer(t, "628111222333")
	env.tenant.ShopifyDomain = "toko.myshopify.com"
	env.tenant.ShopifyToken = "shpat_test"
	env.shopify.fail = true
	env.provider.failText = true

	instr := baseInstruction(OrderInstructionItem{Name: "Sepatu", Quantity: 1, Price: 100})
	order, err := env.orderS.CreateFromAgent(context.Background(), env.tc(), instr)
	if err != nil {
		t.Fatalf("side-effect failures must not fail the order: %v", err)
	}
	if _, err := env.orders.GetByID(order.ID); err != nil {
		t.Error("order should be persisted")
	}
}

func TestCreateFromAgent_BackfillsCustomerAddress(t *testing.T) {
	env := newTestEnv(t)
	seedRates(env)
	customer, _ := env.seedCustomer(t, "628111222333")
	customer.City = "Jakarta" // already known, must survive

	instr := baseInstruction(OrderInstructionItem{Name: "Sepatu", Quantity: 1, Price: 100})
	if _, err := env.orderS.CreateFromAgent(context.Background(), env.tc(), instr); err != nil {
		t.Fatal(err)
	}

	if customer.Address != "Jl. Merdeka 1" {
		t.Errorf("Address = %q, empty field should be filled", customer.Address)
	}
	if customer.City != "Jakarta" {
		t.Errorf("City = %q, known field must never be overwritten", customer.City)
	}
}
