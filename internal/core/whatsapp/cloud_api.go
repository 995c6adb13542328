package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CloudAPIProvider implements WhatsApp Cloud API (Official Business API)
// Documentation: https://developers.facebook.com/docs/whatsapp/cloud-api
type CloudAPIProvider struct {
	baseURL     string
	phoneID     string // WhatsApp Business Phone Number ID
	accessToken string // Meta Business Access Token
	apiVersion  string // API version (e.g., "v18.0")
	client      *http.Client
}

// CloudAPIConfig holds configuration for WhatsApp Cloud API
type CloudAPIConfig struct {
	PhoneID     string `json:"phone_id"`
	AccessToken string `json:"access_token"`
	APIVersion  string `json:"api_version"` // default: v18.0
}

// NewCloudAPIProvider creates a new WhatsApp Cloud API provider
func NewCloudAPIProvider(config CloudAPIConfig) (*CloudAPIProvider, error) {
	if config.PhoneID == "" {
		return nil, fmt.Errorf("phone_id is required")
	}
	if config.AccessToken == "" {
		return nil, fmt.Errorf("access_token is required")
	}

	if config.APIVersion == "" {
		config.APIVersion = "v18.0"
	}

	baseURL := fmt.Sprintf("https://graph.facebook.com/%s/%s", config.APIVersion, config.PhoneID)

	return &CloudAPIProvider{
		baseURL:     baseURL,
		phoneID:     config.PhoneID,
		accessToken: config.AccessToken,
		apiVersion:  config.APIVersion,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (p *CloudAPIProvider) GetProviderName() string {
	return "WhatsApp Cloud API"
}

// SendText sends a text message via Cloud API and returns the id Meta
// assigned to it.
func (p *CloudAPIProvider) SendText(ctx context.Context, to, text string) (string, error) {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                NormalizePhone(to),
		"type":              "text",
		"text": map[string]string{
			"preview_url": "false",
			"body":        text,
		},
	}

	return p.sendRequest(ctx, "/messages", payload)
}

// SendMedia sends an image by link with an optional caption.
func (p *CloudAPIProvider) SendMedia(ctx context.Context, to, mediaURL, caption string) (string, error) {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                NormalizePhone(to),
		"type":              "image",
		"image": map[string]string{
			"link":    mediaURL,
			"caption": caption,
		},
	}

	return p.sendRequest(ctx, "/messages", payload)
}

// DownloadMedia downloads media from Cloud API. Media ids are transient:
// the URL they resolve to expires after a few minutes, so we resolve and
// download in one go.
func (p *CloudAPIProvider) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	mediaURL, mimeType, err := p.getMediaURL(ctx, mediaID)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create download request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+p.accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download media: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	return data, mimeType, nil
}

// getMediaURL resolves a media id to its download URL and mime type.
func (p *CloudAPIProvider) getMediaURL(ctx context.Context, mediaID string) (string, string, error) {
	url := fmt.Sprintf("https://graph.facebook.com/%s/%s", p.apiVersion, mediaID)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+p.accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to get media info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", "", fmt.Errorf("failed to get media URL: %s (status: %d)", string(body), resp.StatusCode)
	}

	var result struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", "", fmt.Errorf("failed to decode response: %w", err)
	}

	return result.URL, result.MimeType, nil
}

// sendRequest is a helper to make API requests
func (p *CloudAPIProvider) sendRequest(ctx context.Context, endpoint string, payload interface{}) (string, error) {
	url := p.baseURL + endpoint

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Messages) == 0 {
		return "", fmt.Errorf("Cloud API response contained no message id")
	}

	return result.Messages[0].ID, nil
}
