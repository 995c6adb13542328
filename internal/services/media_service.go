package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/feliperodres/crm-wipsy-sub001/internal/core/agent"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/jobs"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/upload"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/whatsapp"
	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/feliperodres/crm-wipsy-sub001/internal/repositories"
	"github.com/feliperodres/crm-wipsy-sub001/internal/shared/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Uploader is the slice of the upload service the media fetcher needs.
type Uploader interface {
	Upload(file io.Reader, filename string, options *upload.UploadOptions) (*upload.UploadResult, error)
}

// mediaFetchPayload is the media.fetch job body.
type mediaFetchPayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	GroupID   string `json:"group_id,omitempty"` // set when the message joined an open group
	MediaID   string `json:"media_id,omitempty"`
	MediaURL  string `json:"media_url,omitempty"`
	Type      string `json:"type"`
	Caption   string `json:"caption,omitempty"`
	// Invoke triggers an immediate agent turn once the media resolves
	// (media that did not join a buffered burst is its own turn).
	Invoke bool `json:"invoke"`
}

// MediaService resolves pending media references to durable storage URLs
// outside the synchronous webhook path.
type MediaService struct {
	messages  repositories.MessageRepo
	groups    repositories.GroupRepo
	tenants   repositories.TenantRepo
	customers repositories.CustomerRepo
	chats     repositories.ChatRepo
	channels  repositories.ChannelRepo

	uploads     Uploader
	agent       *AgentService
	providerFor ProviderFactory
	httpClient  *http.Client
}

func NewMediaService(
	messages repositories.MessageRepo,
	groups repositories.GroupRepo,
	tenants repositories.TenantRepo,
	customers repositories.CustomerRepo,
	chats repositories.ChatRepo,
	channels repositories.ChannelRepo,
	uploads Uploader,
	agentSvc *AgentService,
	providerFor ProviderFactory,
) *MediaService {
	return &MediaService{
		messages:    messages,
		groups:      groups,
		tenants:     tenants,
		customers:   customers,
		chats:       chats,
		channels:    channels,
		uploads:     uploads,
		agent:       agentSvc,
		providerFor: providerFor,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (s *MediaService) GetType() string {
	return jobs.TypeMediaFetch
}

func (s *MediaService) Handle(ctx context.Context, job *jobs.Job) error {
	var p mediaFetchPayload
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return fmt.Errorf("invalid media payload: %w", err)
	}

	messageID, err := uuid.Parse(p.MessageID)
	if err != nil {
		return fmt.Errorf("invalid message id: %w", err)
	}

	message, err := s.messages.GetByID(messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load message: %w", err)
	}

	chat, err := s.chats.GetByID(message.ChatID)
	if err != nil {
		return fmt.Errorf("failed to load chat: %w", err)
	}

	url, err := s.resolve(ctx, chat, message, &p)
	if err != nil {
		// Never leave the record pending: a failed attempt shows the
		// error placeholder; a later retry overwrites it on success.
		s.writeFailure(message, &p)
		return err
	}

	meta := message.Metadata
	meta.MediaURL = url
	meta.MediaStatus = models.MediaStatusResolved
	meta.Caption = p.Caption
	if err := s.messages.UpdateMedia(message.ID, url, meta); err != nil {
		return fmt.Errorf("failed to update message media: %w", err)
	}
	s.updateGroupItem(&p, message.ID, url)

	utils.LogInfo("🖼️ media resolved", map[string]interface{}{
		"message_id": message.ID,
		"type":       p.Type,
	})

	if !p.Invoke {
		return nil
	}
	return s.invokeMediaTurn(ctx, chat, message, url, &p)
}

// resolve dereferences the provider media handle and uploads the bytes to
// durable storage, returning the public URL.
func (s *MediaService) resolve(ctx context.Context, chat *models.Chat, message *models.Message, p *mediaFetchPayload) (string, error) {
	data, mimeType, err := s.download(ctx, chat, p)
	if err != nil {
		return "", err
	}

	filename := message.ID.String() + extForMime(mimeType, p.Type)
	folder := fmt.Sprintf("tenants/%s/chats/%s", message.TenantID, message.ChatID)

	result, err := s.uploads.Upload(bytes.NewReader(data), filename, &upload.UploadOptions{
		Folder: folder,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}

	return result.URL, nil
}

func (s *MediaService) download(ctx context.Context, chat *models.Chat, p *mediaFetchPayload) ([]byte, string, error) {
	if p.MediaID != "" {
		channel, err := s.channels.GetByID(chat.ChannelID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load channel: %w", err)
		}
		provider, err := s.providerFor(channel)
		if err != nil {
			return nil, "", err
		}
		return provider.DownloadMedia(ctx, p.MediaID)
	}

	if p.MediaURL != "" {
		req, err := http.NewRequestWithContext(ctx, "GET", p.MediaURL, nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch media url: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("media url returned status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", err
		}
		return data, resp.Header.Get("Content-Type"), nil
	}

	return nil, "", fmt.Errorf("media payload has neither media id nor url")
}

func (s *MediaService) writeFailure(message *models.Message, p *mediaFetchPayload) {
	content := whatsapp.ErrorPlaceholder(p.Type)

	meta := message.Metadata
	meta.MediaStatus = models.MediaStatusFailed
	if err := s.messages.UpdateMedia(message.ID, content, meta); err != nil {
		utils.LogError("failed to write media failure placeholder", err, map[string]interface{}{
			"message_id": message.ID,
		})
	}
	s.updateGroupItem(p, message.ID, content)
}

func (s *MediaService) updateGroupItem(p *mediaFetchPayload, messageID uuid.UUID, content string) {
	if p.GroupID == "" {
		return
	}
	groupID, err := uuid.Parse(p.GroupID)
	if err != nil {
		return
	}
	if err := s.groups.UpdateItemContent(groupID, messageID, content); err != nil {
		utils.LogError("failed to update buffered media content", err, map[string]interface{}{
			"group_id": groupID,
		})
	}
}

func (s *MediaService) invokeMediaTurn(ctx context.Context, chat *models.Chat, message *models.Message, url string, p *mediaFetchPayload) error {
	tenant, err := s.tenants.GetByID(message.TenantID)
	if err != nil {
		return fmt.Errorf("failed to load tenant: %w", err)
	}
	customer, err := s.customers.GetByID(chat.CustomerID)
	if err != nil {
		return fmt.Errorf("failed to load customer: %w", err)
	}
	channel, err := s.channels.GetByID(chat.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to load channel: %w", err)
	}

	if !customer.AIAgentEnabled || !chat.AIAgentEnabled {
		return nil
	}

	content := p.Caption
	if content == "" {
		content = whatsapp.PlaceholderContent(p.Type)
	}

	return s.agent.InvokeTurn(ctx, tenant, channel, customer, chat, []agent.TurnMessage{{
		Sequence: 1,
		Type:     message.Type,
		Content:  content,
		MediaURL: url,
		Caption:  p.Caption,
	}})
}

func extForMime(mimeType, msgType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))

	switch mimeType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "video/mp4":
		return ".mp4"
	case "application/pdf":
		return ".pdf"
	}

	switch msgType {
	case models.MessageTypeImage:
		return ".jpg"
	case models.MessageTypeAudio:
		return ".ogg"
	case models.MessageTypeVideo:
		return ".mp4"
	}
	return ".bin"
}
