package notion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"GeoTool/internal/domain"
	"GeoTool/internal/infrastructure/docblocks"
	"GeoTool/internal/ports"
)

// maxChildrenPerCall is the block limit of one create or append request.
const maxChildrenPerCall = 100

// DocumentGenerator creates delivery documents as child pages.
type DocumentGenerator struct {
	client       *Client
	parentPageID string
	logger       *slog.Logger
}

var _ ports.DocumentGenerator = (*DocumentGenerator)(nil)

// NewDocumentGenerator places documents below parentPageID, or at the
// workspace level when it is empty.
func NewDocumentGenerator(client *Client, parentPageID string, logger *slog.Logger) *DocumentGenerator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DocumentGenerator{client: client, parentPageID: parentPageID, logger: logger}
}

// CreateProjectDocument creates the page and returns its URL.
func (g *DocumentGenerator) CreateProjectDocument(ctx context.Context, projectID, clientName string, results map[string]string) (string, error) {
	title := fmt.Sprintf("【%s】GEO项目交付文档", clientName)

	children := toChildren(docblocks.Delivery(projectID, clientName, results))
	first := children[:min(len(children), maxChildrenPerCall)]

	created, err := g.client.createPage(ctx, "create_document", pageParent(g.parentPageID), Properties{}.Title("title", title), first)
	if err != nil {
		return "", err
	}
	g.logger.Info("document page created", "page_id", created.ID, "title", title)

	if err := g.append(ctx, created.ID, children[len(first):]); err != nil {
		return "", fmt.Errorf("fill document %s: %w", created.ID, err)
	}
	return created.URL, nil
}

// UpdateDocument appends markdown content as blocks.
func (g *DocumentGenerator) UpdateDocument(ctx context.Context, docID, content string) error {
	blocks, err := docblocks.FromMarkdown([]byte(content))
	if err != nil {
		return err
	}
	return g.append(ctx, docID, toChildren(blocks))
}

// SetDocumentPermission is not exposed by the Notion API; sharing is managed
// in the workspace UI.
func (g *DocumentGenerator) SetDocumentPermission(ctx context.Context, docID string, userIDs []string, perm domain.Permission) error {
	g.logger.Info("notion permissions are managed in the workspace, skipping", "page_id", docID, "users", len(userIDs), "perm", perm)
	return nil
}

// GenerateShareLink returns the page URL.
func (g *DocumentGenerator) GenerateShareLink(ctx context.Context, docID string) (string, error) {
	p, err := g.client.retrievePage(ctx, "share_link", docID)
	if err != nil {
		return "", err
	}
	return p.URL, nil
}

func (g *DocumentGenerator) append(ctx context.Context, blockID string, children []map[string]any) error {
	path := fmt.Sprintf("/blocks/%s/children", blockID)
	for start := 0; start < len(children); start += maxChildrenPerCall {
		end := min(start+maxChildrenPerCall, len(children))
		body := map[string]any{"children": children[start:end]}
		if err := g.client.do(ctx, "append_blocks", http.MethodPatch, path, body, nil); err != nil {
			return err
		}
	}
	return nil
}

func pageParent(pageID string) map[string]any {
	if pageID == "" {
		return map[string]any{"type": "workspace", "workspace": true}
	}
	return map[string]any{"page_id": pageID}
}

func toChildren(blocks []docblocks.Block) []map[string]any {
	children := make([]map[string]any, 0, len(blocks))
	for _, b := range blocks {
		children = append(children, toBlock(b))
	}
	return children
}

func toBlock(b docblocks.Block) map[string]any {
	var kind string
	content := map[string]any{"rich_text": richText(b.Text)}

	switch b.Kind {
	case docblocks.Heading:
		kind = fmt.Sprintf("heading_%d", b.Level)
	case docblocks.Bullet:
		kind = "bulleted_list_item"
	case docblocks.Ordered:
		kind = "numbered_list_item"
	case docblocks.Quote:
		kind = "quote"
	case docblocks.Code:
		kind = "code"
		content["language"] = "plain text"
	case docblocks.Divider:
		kind = "divider"
		content = map[string]any{}
	default:
		kind = "paragraph"
	}
	return map[string]any{"object": "block", "type": kind, kind: content}
}
