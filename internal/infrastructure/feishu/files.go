package feishu

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"GeoTool/internal/domain"
	"GeoTool/internal/ports"
)

// Largest file accepted by the single-request upload endpoint.
const maxUploadSize = 20 << 20

// FileManager keeps client artifacts in Feishu drive.
type FileManager struct {
	client     *Client
	rootFolder string
	logger     *slog.Logger
}

var _ ports.FileManager = (*FileManager)(nil)

// NewFileManager creates client folders below rootFolder.
func NewFileManager(client *Client, rootFolder string, logger *slog.Logger) *FileManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileManager{client: client, rootFolder: rootFolder, logger: logger}
}

// CreateClientFolder creates a folder named after the client and returns its token.
func (f *FileManager) CreateClientFolder(ctx context.Context, clientName string) (string, error) {
	var data struct {
		Token string `json:"token"`
		URL   string `json:"url"`
	}
	body := map[string]string{"name": clientName, "folder_token": f.rootFolder}
	if err := f.client.doJSON(ctx, "create_folder", http.MethodPost, "/drive/v1/files/create_folder", nil, body, &data); err != nil {
		return "", err
	}
	if data.Token == "" {
		return "", &domain.BackendError{Platform: domain.PlatformFeishu, Op: "create_folder", Payload: "response carries no token"}
	}
	f.logger.Info("client folder created", "client", clientName, "folder", data.Token)
	return data.Token, nil
}

// UploadFile uploads a local file into folderID and returns its URL.
func (f *FileManager) UploadFile(ctx context.Context, folderID, path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if len(content) > maxUploadSize {
		return "", fmt.Errorf("upload %s: %d bytes exceeds the %d byte limit", path, len(content), maxUploadSize)
	}

	name := filepath.Base(path)
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"file_name", name},
		{"parent_type", "explorer"},
		{"parent_node", folderID},
		{"size", strconv.Itoa(len(content))},
	}
	for _, kv := range fields {
		if err := form.WriteField(kv[0], kv[1]); err != nil {
			return "", fmt.Errorf("write form field %s: %w", kv[0], err)
		}
	}
	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("close form: %w", err)
	}

	var data struct {
		FileToken string `json:"file_token"`
	}
	if err := f.client.do(ctx, "upload_file", http.MethodPost, "/drive/v1/files/upload_all", nil, form.FormDataContentType(), buf.Bytes(), &data); err != nil {
		return "", err
	}
	if data.FileToken == "" {
		return "", &domain.BackendError{Platform: domain.PlatformFeishu, Op: "upload_file", Payload: "response carries no file_token"}
	}

	f.logger.Info("file uploaded", "file", name, "token", data.FileToken)
	return f.client.webURL + "/file/" + data.FileToken, nil
}

// ListFiles pages through the folder content.
func (f *FileManager) ListFiles(ctx context.Context, folderID string) ([]domain.FileInfo, error) {
	query := url.Values{
		"folder_token": {folderID},
		"page_size":    {strconv.Itoa(listPageSize)},
	}

	var files []domain.FileInfo
	for {
		var page struct {
			Files         []domain.FileInfo `json:"files"`
			HasMore       bool              `json:"has_more"`
			NextPageToken string            `json:"next_page_token"`
		}
		if err := f.client.doJSON(ctx, "list_files", http.MethodGet, "/drive/v1/files", query, nil, &page); err != nil {
			return nil, err
		}
		files = append(files, page.Files...)
		if !page.HasMore || page.NextPageToken == "" {
			break
		}
		query.Set("page_token", page.NextPageToken)
	}
	return files, nil
}
