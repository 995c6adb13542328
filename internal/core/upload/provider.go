package upload

import "io"

// UploadResult represents the result of a file upload
type UploadResult struct {
	URL          string `json:"url"`           // Public URL to access the file
	SecureURL    string `json:"secure_url"`    // HTTPS URL
	FileName     string `json:"file_name"`     // Original filename
	Size         int64  `json:"size"`          // File size in bytes
	Format       string `json:"format"`        // File extension/format
	ResourceType string `json:"resource_type"` // image, video, raw
	PublicID     string `json:"public_id"`     // Provider-specific identifier
}

// UploadOptions represents upload configuration options
type UploadOptions struct {
	Folder       string `json:"folder"`        // Folder/directory to upload to
	PublicID     string `json:"public_id"`     // Custom public ID
	ResourceType string `json:"resource_type"` // image, video, raw, auto
}

// Provider defines the interface for file upload providers
type Provider interface {
	Upload(file io.Reader, filename string, options *UploadOptions) (*UploadResult, error)
	Delete(publicID string) error
	GetURL(publicID string) string
	GetProviderName() string
}

// MergeOptions fills unset options with defaults
func MergeOptions(custom *UploadOptions) *UploadOptions {
	defaults := &UploadOptions{
		Folder:       "media",
		ResourceType: "auto",
	}
	if custom == nil {
		return defaults
	}
	if custom.Folder != "" {
		defaults.Folder = custom.Folder
	}
	if custom.PublicID != "" {
		defaults.PublicID = custom.PublicID
	}
	if custom.ResourceType != "" {
		defaults.ResourceType = custom.ResourceType
	}
	return defaults
}
