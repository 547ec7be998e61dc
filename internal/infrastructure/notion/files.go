package notion

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"GeoTool/internal/domain"
	"GeoTool/internal/ports"
)

// FileManager maps folders to child pages. Notion offers no file storage for
// integrations, so uploads stay on the local disk.
type FileManager struct {
	client       *Client
	parentPageID string
	logger       *slog.Logger
}

var _ ports.FileManager = (*FileManager)(nil)

// NewFileManager creates folders as child pages of parentPageID.
func NewFileManager(client *Client, parentPageID string, logger *slog.Logger) *FileManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileManager{client: client, parentPageID: parentPageID, logger: logger}
}

// CreateClientFolder creates a page titled with the client name.
func (f *FileManager) CreateClientFolder(ctx context.Context, clientName string) (string, error) {
	created, err := f.client.createPage(ctx, "create_folder", pageParent(f.parentPageID), Properties{}.Title("title", clientName), nil)
	if err != nil {
		return "", err
	}
	f.logger.Info("client page created", "client", clientName, "page_id", created.ID)
	return created.ID, nil
}

// UploadFile returns the local path unchanged once the file is known to exist.
func (f *FileManager) UploadFile(_ context.Context, folderID, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	f.logger.Warn("notion has no file storage, keeping local file", "page_id", folderID, "path", path)
	return path, nil
}

// ListFiles always returns an empty listing.
func (f *FileManager) ListFiles(_ context.Context, folderID string) ([]domain.FileInfo, error) {
	return []domain.FileInfo{}, nil
}
