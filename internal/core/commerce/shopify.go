package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ShopifyClient pushes materialized orders into a tenant's Shopify
// store via the Admin API. Best-effort downstream sync; callers log
// failures and move on.
type ShopifyClient struct {
	domain      string
	accessToken string
	apiVersion  string
	client      *http.Client
}

func NewShopifyClient(domain, accessToken string) *ShopifyClient {
	return &ShopifyClient{
		domain:      domain,
		accessToken: accessToken,
		apiVersion:  "2024-01",
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// OrderLineItem is one line of a pushed order. VariantID is optional:
// custom line items carry title and price instead.
type OrderLineItem struct {
	VariantID string  `json:"variant_id,omitempty"`
	Title     string  `json:"title,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price,string"`
}

// OrderPush is the subset of the Shopify order resource we create.
type OrderPush struct {
	Phone         string          `json:"phone,omitempty"`
	Note          string          `json:"note,omitempty"`
	Tags          string          `json:"tags,omitempty"`
	LineItems     []OrderLineItem `json:"line_items"`
	TotalShipping float64         `json:"-"`
	Address       PushAddress     `json:"-"`
}

type PushAddress struct {
	Name     string `json:"name,omitempty"`
	Address1 string `json:"address1,omitempty"`
	City     string `json:"city,omitempty"`
	Province string `json:"province,omitempty"`
	Zip      string `json:"zip,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// CreateOrder creates the order and returns Shopify's order id.
func (c *ShopifyClient) CreateOrder(ctx context.Context, push *OrderPush) (string, error) {
	if c.domain == "" || c.accessToken == "" {
		return "", fmt.Errorf("shopify credentials not configured")
	}

	body := map[string]interface{}{
		"order": map[string]interface{}{
			"phone":      push.Phone,
			"note":       push.Note,
			"tags":       push.Tags,
			"line_items": push.LineItems,
			"shipping_lines": []map[string]interface{}{
				{"title": "Shipping", "price": fmt.Sprintf("%.2f", push.TotalShipping)},
			},
			"shipping_address":       push.Address,
			"financial_status":       "pending",
			"send_receipt":           false,
			"inventory_behaviour":    "bypass",
			"suppress_notifications": true,
		},
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal order: %w", err)
	}

	url := fmt.Sprintf("https://%s/admin/api/%s/orders.json", c.domain, c.apiVersion)

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("shopify request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("shopify returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Order struct {
			ID json.Number `json:"id"`
		} `json:"order"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode shopify response: %w", err)
	}

	return result.Order.ID.String(), nil
}
