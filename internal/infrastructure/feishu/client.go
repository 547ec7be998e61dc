// Package feishu implements the collaboration capabilities on Feishu (Lark):
// bitable records, docx documents, drive folders and bot webhooks.
package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"GeoTool/internal/config"
	"GeoTool/internal/domain"
	"GeoTool/internal/retry"
)

const (
	tokenPath     = "/auth/v3/tenant_access_token/internal"
	tokenMargin   = 5 * time.Minute
	defaultExpire = 7200
	maxPayload    = 2048
)

// Client owns the tenant access token of one Feishu app and performs
// authenticated calls against the open API.
type Client struct {
	appID     string
	appSecret string
	baseURL   string
	webURL    string
	http      *http.Client
	logger    *slog.Logger
	executor  *retry.Executor
	policy    retry.Policy
	now       func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewClient builds a client from configuration. No request is made until the
// first call.
func NewClient(cfg config.FeishuConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		webURL:    strings.TrimRight(cfg.WebURL, "/"),
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
		executor:  retry.NewExecutor(logger),
		policy:    retry.Policy{MaxAttempts: 1},
		now:       time.Now,
	}
}

// WithRetry makes transport failures retry under policy.
func (c *Client) WithRetry(executor *retry.Executor, policy retry.Policy) *Client {
	c.executor = executor
	c.policy = policy
	return c
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int    `json:"expire"`
}

// accessToken returns the cached token or acquires a new one.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	body, err := json.Marshal(map[string]string{"app_id": c.appID, "app_secret": c.appSecret})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}

	status, raw, err := c.roundTrip(ctx, "token", http.MethodPost, c.baseURL+tokenPath, "application/json; charset=utf-8", body, "")
	if err != nil {
		return "", err
	}

	var resp tokenResponse
	if err := json.Unmarshal(raw, &resp); err != nil || status >= http.StatusBadRequest || resp.Code != 0 {
		return "", &domain.BackendError{Platform: domain.PlatformFeishu, Op: "token", StatusCode: status, Code: resp.Code, Payload: truncate(raw)}
	}

	expire := resp.Expire
	if expire <= 0 {
		expire = defaultExpire
	}
	c.token = resp.TenantAccessToken
	c.expiresAt = c.now().Add(time.Duration(expire)*time.Second - tokenMargin)
	c.logger.Debug("tenant access token acquired", "app_id", c.appID, "expires_at", c.expiresAt)

	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// doJSON sends body as JSON and decodes the envelope's data into out.
func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
	}
	return c.do(ctx, op, method, path, query, "application/json; charset=utf-8", payload, out)
}

// do performs an authenticated call and unwraps the {code,msg,data} envelope.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, contentType string, payload []byte, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	return c.executor.Do(ctx, "feishu."+op, c.policy, func(ctx context.Context) error {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}

		status, raw, err := c.roundTrip(ctx, op, method, endpoint, contentType, payload, token)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			c.invalidateToken()
		}

		var env envelope
		if jsonErr := json.Unmarshal(raw, &env); jsonErr != nil || status >= http.StatusBadRequest || env.Code != 0 {
			return &domain.BackendError{Platform: domain.PlatformFeishu, Op: op, StatusCode: status, Code: env.Code, Payload: truncate(raw)}
		}

		if out == nil || len(env.Data) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s: decode data: %w", op, err)
		}
		return nil
	})
}

// roundTrip sends one request. Transport failures are transient.
func (c *Client) roundTrip(ctx context.Context, op, method, endpoint, contentType string, payload []byte, token string) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: new request: %w", op, err)
	}
	if contentType != "" && payload != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &domain.TransientNetworkError{Op: "feishu." + op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &domain.TransientNetworkError{Op: "feishu." + op, Err: err}
	}
	return resp.StatusCode, raw, nil
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
