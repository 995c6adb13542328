package upload

import (
	"fmt"
	"io"

	"github.com/feliperodres/crm-wipsy-sub001/internal/shared/config"
)

// Service provides file upload functionality with provider switching
type Service struct {
	provider     Provider
	providerName string
}

// NewService creates a new upload service
func NewService(provider Provider) *Service {
	return &Service{
		provider:     provider,
		providerName: provider.GetProviderName(),
	}
}

// NewServiceFromConfig builds the upload service for the configured provider
func NewServiceFromConfig(cfg *config.Config) (*Service, error) {
	var (
		provider Provider
		err      error
	)

	switch cfg.UploadProvider {
	case "s3":
		provider, err = NewS3Provider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, cfg.S3Region, cfg.S3Bucket)
	case "cloudinary":
		provider, err = NewCloudinaryProvider(cfg.CloudinaryName, cfg.CloudinaryKey, cfg.CloudinarySecret)
	case "local":
		provider, err = NewLocalProvider(cfg.LocalUploadDir, cfg.LocalUploadBaseURL)
	default:
		return nil, fmt.Errorf("unknown upload provider: %s", cfg.UploadProvider)
	}
	if err != nil {
		return nil, err
	}

	return NewService(provider), nil
}

// Upload uploads a file using the configured provider
func (s *Service) Upload(file io.Reader, filename string, options *UploadOptions) (*UploadResult, error) {
	if s.provider == nil {
		return nil, fmt.Errorf("upload provider not configured")
	}
	return s.provider.Upload(file, filename, options)
}

// Delete deletes a file by public ID
func (s *Service) Delete(publicID string) error {
	if s.provider == nil {
		return fmt.Errorf("upload provider not configured")
	}
	return s.provider.Delete(publicID)
}

// GetURL gets the public URL for a file
func (s *Service) GetURL(publicID string) string {
	if s.provider == nil {
		return ""
	}
	return s.provider.GetURL(publicID)
}

// GetProviderName returns the current provider name
func (s *Service) GetProviderName() string {
	return s.providerName
}
