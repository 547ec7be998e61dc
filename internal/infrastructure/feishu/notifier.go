package feishu

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

// Notifier posts interactive cards to a Feishu group bot webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers the bot webhook.
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

// SendProgressNotification posts a blue progress card.
func (n *Notifier) SendProgressNotification(ctx context.Context, projectID, stage string, status domain.StageStatus, message string) bool {
	content := fmt.Sprintf("**阶段**: %s\n**状态**: %s\n\n%s", stage, status.Label(), message)
	return n.post(ctx, "progress", card("项目进度更新", "blue", textElement(content)))
}

// SendCompletionNotification posts a green card linking the delivery document.
func (n *Notifier) SendCompletionNotification(ctx context.Context, projectID, clientName, docURL string) bool {
	content := fmt.Sprintf("**客户**: %s\n**项目ID**: %s\n\n所有阶段已完成，请查看交付文档。", clientName, projectID)
	elements := []map[string]any{textElement(content)}
	if docURL != "" {
		elements = append(elements, map[string]any{
			"tag": "action",
			"actions": []map[string]any{{
				"tag":  "button",
				"text": map[string]string{"tag": "plain_text", "content": "查看详细结果"},
				"url":  docURL,
				"type": "primary",
			}},
		})
	}
	return n.post(ctx, "completion", card("项目已完成", "green", elements...))
}

// SendAlert posts a red card titled with kind.
func (n *Notifier) SendAlert(ctx context.Context, kind, message string) bool {
	return n.post(ctx, "alert", card(kind, "red", textElement(message)))
}

func (n *Notifier) post(ctx context.Context, kind string, payload map[string]any) bool {
	if err := n.send(ctx, payload); err != nil {
		n.logger.Warn("feishu notification failed", "kind", kind, "error", err)
		return false
	}
	n.logger.Debug("feishu notification sent", "kind", kind)
	return true
}

func (n *Notifier) send(ctx context.Context, payload map[string]any) error {
	if n.webhookURL == "" || n.client == nil {
		return fmt.Errorf("feishu notifier misconfigured: webhook url is empty")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal card: %w", err)
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

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxPayload))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook error %s: %s", resp.Status, truncate(raw))
	}

	var result struct {
		Code       int `json:"code"`
		StatusCode int `json:"StatusCode"`
	}
	if err := json.Unmarshal(raw, &result); err == nil && (result.Code != 0 || result.StatusCode != 0) {
		return fmt.Errorf("webhook rejected card: %s", truncate(raw))
	}
	return nil
}

func card(title, template string, elements ...map[string]any) map[string]any {
	return map[string]any{
		"msg_type": "interactive",
		"card": map[string]any{
			"header": map[string]any{
				"title":    map[string]string{"tag": "plain_text", "content": title},
				"template": template,
			},
			"elements": elements,
		},
	}
}

func textElement(content string) map[string]any {
	return map[string]any{
		"tag":  "div",
		"text": map[string]string{"tag": "lark_md", "content": content},
	}
}
