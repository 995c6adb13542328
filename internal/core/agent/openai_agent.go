package agent

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider is the synchronous fallback for tenants without an
// external agent endpoint: one chat completion per turn, system prompt
// built from the tenant's store configuration.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAIProvider(apiKey string, model string) *OpenAIProvider {
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAIProvider{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: 0.7,
		maxTokens:   300,
	}
}

func (p *OpenAIProvider) GetProviderName() string {
	return "OpenAI"
}

func (p *OpenAIProvider) Invoke(ctx context.Context, inv *Invocation) (*Reply, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(inv)},
			{Role: openai.ChatMessageRoleUser, Content: buildUserMessage(inv)},
		},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})

	if err != nil {
		return nil, fmt.Errorf("openai error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	return &Reply{Text: resp.Choices[0].Message.Content}, nil
}

func buildSystemPrompt(inv *Invocation) string {
	var sb strings.Builder

	name := inv.AgentName
	if name == "" {
		name = "a sales assistant"
	}
	fmt.Fprintf(&sb, "You are %s, answering WhatsApp messages for an online store.\n", name)

	if inv.AgentPersonality != "" {
		fmt.Fprintf(&sb, "Personality: %s\n", inv.AgentPersonality)
	}
	if inv.SalesMode != "" {
		fmt.Fprintf(&sb, "Sales mode: %s\n", inv.SalesMode)
	}
	if inv.StoreInfo != "" {
		fmt.Fprintf(&sb, "\nStore information:\n%s\n", inv.StoreInfo)
	}
	if len(inv.PaymentMethods) > 0 {
		fmt.Fprintf(&sb, "\nAccepted payment methods: %s\n", strings.Join(inv.PaymentMethods, ", "))
	}
	if len(inv.ShippingRates) > 0 {
		sb.WriteString("\nShipping options:\n")
		for _, r := range inv.ShippingRates {
			fmt.Fprintf(&sb, "- %s: %.2f\n", r.Name, r.Price)
		}
	}

	sb.WriteString("\nAnswer briefly, in the customer's language.")
	return sb.String()
}

func buildUserMessage(inv *Invocation) string {
	var sb strings.Builder
	for i, m := range inv.Messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		if m.MediaURL != "" {
			fmt.Fprintf(&sb, "%s (%s)", m.Content, m.MediaURL)
		} else {
			sb.WriteString(m.Content)
		}
	}
	return sb.String()
}
