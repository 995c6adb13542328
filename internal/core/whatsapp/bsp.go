package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BSPProvider talks to a WAHA-compatible BSP gateway. The gateway holds
// the actual WhatsApp session; we only call its HTTP API.
type BSPProvider struct {
	baseURL string
	apiKey  string
	session string
	client  *http.Client
}

func NewBSPProvider(baseURL, apiKey, session string) *BSPProvider {
	return &BSPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		session: session,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (p *BSPProvider) GetProviderName() string {
	return "BSP"
}

// SendText sends a text message. The gateway returns the assigned
// message id, which we need to tell our own echoes from manual replies.
func (p *BSPProvider) SendText(ctx context.Context, to, text string) (string, error) {
	payload := map[string]interface{}{
		"session": p.session,
		"chatId":  chatID(to),
		"text":    text,
	}

	return p.sendRequest(ctx, "/api/sendText", payload)
}

func (p *BSPProvider) SendMedia(ctx context.Context, to, mediaURL, caption string) (string, error) {
	payload := map[string]interface{}{
		"session": p.session,
		"chatId":  chatID(to),
		"file": map[string]string{
			"url": mediaURL,
		},
		"caption": caption,
	}

	return p.sendRequest(ctx, "/api/sendImage", payload)
}

// DownloadMedia fetches media bytes by the gateway's media id. The
// gateway answers with base64-encoded data plus the mimetype.
func (p *BSPProvider) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	endpoint := fmt.Sprintf("%s/api/%s/media/%s", p.baseURL, p.session, mediaID)

	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("X-Api-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("BSP returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data     string `json:"data"`
		MimeType string `json:"mimetype"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, "", fmt.Errorf("failed to decode media response: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(result.Data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode media data: %w", err)
	}

	return data, result.MimeType, nil
}

func (p *BSPProvider) sendRequest(ctx context.Context, endpoint string, payload interface{}) (string, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-Api-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("BSP returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		ID struct {
			Serialized string `json:"_serialized"`
		} `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// Some gateways reply with an empty body on success.
		return "", nil
	}

	return result.ID.Serialized, nil
}

// chatID formats a phone number as a WhatsApp chat id (628xxx@c.us).
func chatID(phone string) string {
	if len(phone) > 0 && phone[0] == '+' {
		phone = phone[1:]
	}
	return phone + "@c.us"
}
