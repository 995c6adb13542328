package whatsapp

import (
	"context"
	"fmt"

	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
)

// Provider is the outbound surface of one connected WhatsApp channel.
type Provider interface {
	// SendText sends a text message; returns the provider message id so
	// the manual-reply detector can recognize our own sends.
	SendText(ctx context.Context, to, text string) (string, error)

	// SendMedia sends media by URL with an optional caption.
	SendMedia(ctx context.Context, to, mediaURL, caption string) (string, error)

	// DownloadMedia resolves a transient provider media handle to bytes.
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error)

	// GetProviderName identifies the provider for logging.
	GetProviderName() string
}

// Factory builds providers per channel. BSP and Meta providers are
// stateless HTTP clients built per call; all direct channels share one
// WhatsApp Web session that connects lazily on first send.
type Factory struct {
	direct *WhatsmeowProvider
}

func NewFactory(directStoreURL string) *Factory {
	return &Factory{
		direct: NewWhatsmeowProvider(directStoreURL),
	}
}

func (f *Factory) ForChannel(channel *models.Channel) (Provider, error) {
	switch channel.Provider {
	case models.ChannelProviderBSP:
		if channel.BaseURL == "" || channel.APIKey == "" {
			return nil, fmt.Errorf("BSP channel requires base_url and api_key")
		}
		return NewBSPProvider(channel.BaseURL, channel.APIKey, channel.PhoneNumber), nil

	case models.ChannelProviderMeta:
		if channel.PhoneNumberID == "" || channel.AccessToken == "" {
			return nil, fmt.Errorf("meta channel requires phone_number_id and access_token")
		}
		return NewCloudAPIProvider(CloudAPIConfig{
			PhoneID:     channel.PhoneNumberID,
			AccessToken: channel.AccessToken,
		})

	case models.ChannelProviderDirect:
		return f.direct, nil

	default:
		return nil, fmt.Errorf("unknown channel provider: %s", channel.Provider)
	}
}

// Close tears down the shared direct session, if one was ever brought up.
func (f *Factory) Close() {
	f.direct.Disconnect()
}
