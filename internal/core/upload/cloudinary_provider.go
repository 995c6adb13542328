package upload

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// CloudinaryProvider implements file upload to Cloudinary
type CloudinaryProvider struct {
	cld       *cloudinary.Cloudinary
	cloudName string
}

// NewCloudinaryProvider creates a new Cloudinary provider
func NewCloudinaryProvider(cloudName, apiKey, apiSecret string) (*CloudinaryProvider, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}

	return &CloudinaryProvider{
		cld:       cld,
		cloudName: cloudName,
	}, nil
}

// Upload uploads a file to Cloudinary
func (p *CloudinaryProvider) Upload(file io.Reader, filename string, options *UploadOptions) (*UploadResult, error) {
	options = MergeOptions(options)

	ctx := context.Background()

	params := uploader.UploadParams{
		Folder:       options.Folder,
		ResourceType: options.ResourceType,
	}
	if options.PublicID != "" {
		params.PublicID = options.PublicID
	}

	result, err := p.cld.Upload.Upload(ctx, file, params)
	if err != nil {
		return nil, fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	if result.Error.Message != "" {
		return nil, fmt.Errorf("cloudinary error: %s", result.Error.Message)
	}

	return &UploadResult{
		URL:          result.URL,
		SecureURL:    result.SecureURL,
		FileName:     filename,
		Size:         int64(result.Bytes),
		Format:       result.Format,
		ResourceType: result.ResourceType,
		PublicID:     result.PublicID,
	}, nil
}

// Delete deletes a file from Cloudinary
func (p *CloudinaryProvider) Delete(publicID string) error {
	ctx := context.Background()

	result, err := p.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID: publicID,
	})
	if err != nil {
		return fmt.Errorf("failed to delete from Cloudinary: %w", err)
	}
	if result.Result != "ok" && result.Result != "not found" {
		return fmt.Errorf("cloudinary delete failed: %s", result.Result)
	}
	return nil
}

// GetURL gets the public URL for a file from Cloudinary
func (p *CloudinaryProvider) GetURL(publicID string) string {
	ext := filepath.Ext(publicID)
	resourceType := detectResourceType(ext)
	if resourceType == "raw" && !strings.Contains(publicID, ".") {
		resourceType = "image"
	}
	return fmt.Sprintf("https://res.cloudinary.com/%s/%s/upload/%s", p.cloudName, resourceType, publicID)
}

// GetProviderName returns the provider name
func (p *CloudinaryProvider) GetProviderName() string {
	return "Cloudinary"
}
