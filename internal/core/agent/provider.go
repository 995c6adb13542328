package agent

import (
	"context"
)

// TurnMessage is one member of the conversation turn handed to the
// agent, in arrival order. Media is always passed by URL.
type TurnMessage struct {
	Sequence int    `json:"sequence"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	MediaURL string `json:"media_url,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// RateInfo is the agent-facing view of a shipping rate.
type RateInfo struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	ConditionType  string  `json:"condition_type,omitempty"`
	ConditionValue float64 `json:"condition_value,omitempty"`
}

// Invocation carries one grouped conversation turn plus the tenant's
// store configuration.
type Invocation struct {
	TenantID      string        `json:"tenant_id"`
	ChatID        string        `json:"chat_id"`
	CustomerPhone string        `json:"customer_phone"`
	CustomerName  string        `json:"customer_name,omitempty"`
	Messages      []TurnMessage `json:"messages"`

	AgentName        string     `json:"agent_name,omitempty"`
	AgentPersonality string     `json:"agent_personality,omitempty"`
	SalesMode        string     `json:"sales_mode,omitempty"`
	StoreInfo        string     `json:"store_info,omitempty"`
	PaymentMethods   []string   `json:"payment_methods,omitempty"`
	ShippingRates    []RateInfo `json:"shipping_rates,omitempty"`
}

// Reply is a synchronous agent answer. Providers that answer through
// the agent-events webhook instead return a nil Reply.
type Reply struct {
	Text string
}

// Provider invokes the AI agent for one conversation turn.
type Provider interface {
	Invoke(ctx context.Context, inv *Invocation) (*Reply, error)
	GetProviderName() string
}
