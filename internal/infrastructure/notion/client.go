// Package notion implements the collaboration capabilities on Notion:
// database pages for projects and records, child pages for documents.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"GeoTool/internal/config"
	"GeoTool/internal/domain"
	"GeoTool/internal/retry"
)

const (
	defaultVersion = "2022-06-28"
	maxPayload     = 2048
)

// Client performs authenticated calls against the Notion REST API.
type Client struct {
	apiKey   string
	baseURL  string
	version  string
	http     *http.Client
	logger   *slog.Logger
	executor *retry.Executor
	policy   retry.Policy
}

// NewClient builds a client from configuration without touching the network.
func NewClient(cfg config.NotionConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	version := cfg.Version
	if version == "" {
		version = defaultVersion
	}
	return &Client{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		version:  version,
		http:     &http.Client{Timeout: timeout},
		logger:   logger,
		executor: retry.NewExecutor(logger),
		policy:   retry.Policy{MaxAttempts: 1},
	}
}

// WithRetry makes transport failures retry under policy.
func (c *Client) WithRetry(executor *retry.Executor, policy retry.Policy) *Client {
	c.executor = executor
	c.policy = policy
	return c
}

type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do sends body as JSON and decodes a 2xx response into out.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
	}

	return c.executor.Do(ctx, "notion."+op, c.policy, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("%s: new request: %w", op, err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Notion-Version", c.version)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return &domain.TransientNetworkError{Op: "notion." + op, Err: err}
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return &domain.TransientNetworkError{Op: "notion." + op, Err: err}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var apiErr apiError
			_ = json.Unmarshal(raw, &apiErr)
			c.logger.Debug("notion call rejected", "op", op, "status", resp.StatusCode, "code", apiErr.Code)
			return &domain.BackendError{Platform: domain.PlatformNotion, Op: op, StatusCode: resp.StatusCode, Payload: truncate(raw)}
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
		return nil
	})
}

// createPage creates a page under parent and returns it.
func (c *Client) createPage(ctx context.Context, op string, parent map[string]any, properties Properties, children []map[string]any) (page, error) {
	body := map[string]any{"parent": parent, "properties": properties}
	if len(children) > 0 {
		body["children"] = children
	}

	var created page
	if err := c.do(ctx, op, http.MethodPost, "/pages", body, &created); err != nil {
		return page{}, err
	}
	if created.ID == "" {
		return page{}, &domain.BackendError{Platform: domain.PlatformNotion, Op: op, Payload: "response carries no page id"}
	}
	return created, nil
}

func (c *Client) retrievePage(ctx context.Context, op, pageID string) (page, error) {
	var p page
	err := c.do(ctx, op, http.MethodGet, "/pages/"+pageID, nil, &p)
	return p, err
}

func isNotFound(err error) bool {
	var backendErr *domain.BackendError
	return errors.As(err, &backendErr) && backendErr.StatusCode == http.StatusNotFound
}

func truncate(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) <= maxPayload {
		return s
	}
	cut := maxPayload
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
