package feishu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"GeoTool/internal/domain"
	"GeoTool/internal/infrastructure/docblocks"
	"GeoTool/internal/ports"
)

// Children per append request accepted by the docx API.
const maxChildrenPerCall = 50

// Docx block types.
const (
	blockText     = 2
	blockHeading1 = 3
	blockBullet   = 12
	blockOrdered  = 13
	blockCode     = 14
	blockQuote    = 15
	blockDivider  = 22
)

// DocumentGenerator creates delivery documents in Feishu docx.
type DocumentGenerator struct {
	client      *Client
	folderToken string
	shareWith   []string
	logger      *slog.Logger
}

var _ ports.DocumentGenerator = (*DocumentGenerator)(nil)

// NewDocumentGenerator places new documents into folderToken (drive root when empty).
func NewDocumentGenerator(client *Client, folderToken string, logger *slog.Logger) *DocumentGenerator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DocumentGenerator{client: client, folderToken: folderToken, logger: logger}
}

// WithShareUsers grants view access on every new document to these open ids.
func (g *DocumentGenerator) WithShareUsers(openIDs []string) *DocumentGenerator {
	g.shareWith = openIDs
	return g
}

type documentData struct {
	Document struct {
		DocumentID string `json:"document_id"`
	} `json:"document"`
}

// CreateProjectDocument creates the document and fills it with one section per
// stage artifact.
func (g *DocumentGenerator) CreateProjectDocument(ctx context.Context, projectID, clientName string, results map[string]string) (string, error) {
	title := fmt.Sprintf("【%s】GEO项目交付文档", clientName)

	var data documentData
	body := map[string]any{"title": title, "folder_token": g.folderToken}
	if err := g.client.doJSON(ctx, "create_document", http.MethodPost, "/docx/v1/documents", nil, body, &data); err != nil {
		return "", err
	}
	docID := data.Document.DocumentID
	if docID == "" {
		return "", &domain.BackendError{Platform: domain.PlatformFeishu, Op: "create_document", Payload: "response carries no document_id"}
	}
	g.logger.Info("document created", "document_id", docID, "title", title)

	blocks := docblocks.Delivery(projectID, clientName, results)
	if err := g.appendBlocks(ctx, docID, blocks); err != nil {
		return "", fmt.Errorf("fill document %s: %w", docID, err)
	}

	if len(g.shareWith) > 0 {
		if err := g.SetDocumentPermission(ctx, docID, g.shareWith, domain.PermissionView); err != nil {
			g.logger.Warn("share document failed", "document_id", docID, "error", err)
		}
	}

	return g.documentURL(docID), nil
}

// UpdateDocument appends markdown content to the end of the document.
func (g *DocumentGenerator) UpdateDocument(ctx context.Context, docID, content string) error {
	blocks, err := docblocks.FromMarkdown([]byte(content))
	if err != nil {
		return err
	}
	return g.appendBlocks(ctx, docID, blocks)
}

// SetDocumentPermission grants perm to every user; failures are joined.
func (g *DocumentGenerator) SetDocumentPermission(ctx context.Context, docID string, userIDs []string, perm domain.Permission) error {
	query := url.Values{"type": {"docx"}, "need_notification": {"false"}}
	path := fmt.Sprintf("/drive/v1/permissions/%s/members", docID)

	var errs []error
	for _, userID := range userIDs {
		body := map[string]string{
			"member_type": "openid",
			"member_id":   userID,
			"perm":        string(perm),
		}
		if err := g.client.doJSON(ctx, "set_permission", http.MethodPost, path, query, body, nil); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}

// GenerateShareLink opens the document to the tenant and returns its URL.
func (g *DocumentGenerator) GenerateShareLink(ctx context.Context, docID string) (string, error) {
	query := url.Values{"type": {"docx"}}
	body := map[string]string{"link_share_entity": "tenant_readable"}
	if err := g.client.doJSON(ctx, "share_link", http.MethodPatch, fmt.Sprintf("/drive/v1/permissions/%s/public", docID), query, body, nil); err != nil {
		return "", err
	}
	return g.documentURL(docID), nil
}

func (g *DocumentGenerator) documentURL(docID string) string {
	return g.client.webURL + "/docx/" + docID
}

func (g *DocumentGenerator) appendBlocks(ctx context.Context, docID string, blocks []docblocks.Block) error {
	path := fmt.Sprintf("/docx/v1/documents/%s/blocks/%s/children", docID, docID)

	children := make([]map[string]any, 0, len(blocks))
	for _, b := range blocks {
		children = append(children, toDocxBlock(b))
	}

	for start := 0; start < len(children); start += maxChildrenPerCall {
		end := min(start+maxChildrenPerCall, len(children))
		body := map[string]any{"children": children[start:end], "index": -1}
		if err := g.client.doJSON(ctx, "append_blocks", http.MethodPost, path, nil, body, nil); err != nil {
			return err
		}
	}
	return nil
}

func toDocxBlock(b docblocks.Block) map[string]any {
	elements := map[string]any{
		"elements": []map[string]any{{"text_run": map[string]string{"content": b.Text}}},
	}

	switch b.Kind {
	case docblocks.Heading:
		level := b.Level
		key := fmt.Sprintf("heading%d", level)
		return map[string]any{"block_type": blockHeading1 + level - 1, key: elements}
	case docblocks.Bullet:
		return map[string]any{"block_type": blockBullet, "bullet": elements}
	case docblocks.Ordered:
		return map[string]any{"block_type": blockOrdered, "ordered": elements}
	case docblocks.Code:
		return map[string]any{"block_type": blockCode, "code": elements}
	case docblocks.Quote:
		return map[string]any{"block_type": blockQuote, "quote": elements}
	case docblocks.Divider:
		return map[string]any{"block_type": blockDivider, "divider": map[string]any{}}
	default:
		return map[string]any{"block_type": blockText, "text": elements}
	}
}
