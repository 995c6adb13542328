package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalProvider stores files on the local filesystem. Development use;
// production deployments configure S3 or Cloudinary.
type LocalProvider struct {
	baseDir string
	baseURL string
}

// NewLocalProvider creates a new local filesystem provider
func NewLocalProvider(baseDir, baseURL string) (*LocalProvider, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalProvider{
		baseDir: baseDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Upload writes the file under baseDir/folder
func (p *LocalProvider) Upload(file io.Reader, filename string, options *UploadOptions) (*UploadResult, error) {
	options = MergeOptions(options)

	ext := filepath.Ext(filename)
	nameWithoutExt := strings.TrimSuffix(filename, ext)

	var key string
	if options.PublicID != "" {
		key = filepath.Join(options.Folder, options.PublicID+ext)
	} else {
		uniqueID := uuid.New().String()[:8]
		key = filepath.Join(options.Folder, fmt.Sprintf("%s_%d_%s%s", nameWithoutExt, time.Now().Unix(), uniqueID, ext))
	}

	fullPath := filepath.Join(p.baseDir, key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}

	out, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	size, err := io.Copy(out, file)
	if err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	key = strings.ReplaceAll(key, "\\", "/")
	url := p.GetURL(key)

	return &UploadResult{
		URL:          url,
		SecureURL:    url,
		FileName:     filename,
		Size:         size,
		Format:       strings.TrimPrefix(ext, "."),
		ResourceType: detectResourceType(ext),
		PublicID:     key,
	}, nil
}

// Delete removes a file from the local filesystem
func (p *LocalProvider) Delete(publicID string) error {
	fullPath := filepath.Join(p.baseDir, publicID)
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GetURL gets the public URL for a file
func (p *LocalProvider) GetURL(publicID string) string {
	if p.baseURL == "" {
		return "/" + publicID
	}
	return p.baseURL + "/" + publicID
}

// GetProviderName returns the provider name
func (p *LocalProvider) GetProviderName() string {
	return "Local"
}
