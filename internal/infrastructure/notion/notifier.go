package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"GeoTool/internal/domain"
	"GeoTool/internal/ports"
)

// Notifier has no Notion-side channel: it logs every event and forwards a
// plain text message to an optional webhook (Slack-compatible payload).
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier posts messages to the webhook at webhookURL.
func NewNotifier(webhookURL string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

func (n *Notifier) SendProgressNotification(ctx context.Context, projectID, stage string, status domain.StageStatus, message string) bool {
	n.logger.Info("progress", "project_id", projectID, "stage", stage, "status", status, "message", message)
	return n.post(ctx, fmt.Sprintf("[GEO] 项目 %s - %s - %s\n%s", projectID, stage, status.Label(), message))
}

func (n *Notifier) SendCompletionNotification(ctx context.Context, projectID, clientName, docURL string) bool {
	n.logger.Info("project completed", "project_id", projectID, "client", clientName, "doc_url", docURL)
	text := fmt.Sprintf("[GEO] 项目完成: %s", clientName)
	if docURL != "" {
		text += "\n查看文档: " + docURL
	}
	return n.post(ctx, text)
}

func (n *Notifier) SendAlert(ctx context.Context, kind, message string) bool {
	n.logger.Warn("alert", "kind", kind, "message", message)
	return n.post(ctx, fmt.Sprintf("[GEO告警] %s: %s", kind, message))
}

// post returns true when no webhook is configured.
func (n *Notifier) post(ctx context.Context, text string) bool {
	if n.webhookURL == "" {
		return true
	}
	if err := n.send(ctx, text); err != nil {
		n.logger.Warn("webhook delivery failed", "error", err)
		return false
	}
	return true
}

func (n *Notifier) send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
		return fmt.Errorf("webhook error %s: %s", resp.Status, truncate(raw))
	}
	return nil
}
