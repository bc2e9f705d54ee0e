package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"vandvik/config"
	"vandvik/models"
)

// ErrNoAPIKey is fatal to startup; the UI surfaces it once and disables input.
var ErrNoAPIKey = errors.New("missing API key")

// Client talks to a generativelanguage-compatible REST API.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiBase    string
	apiKey     string
	model      string
	sysPrompt  string
}

func NewClient(logger *slog.Logger, cfg *config.Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	return &Client{
		httpClient: createClient(time.Second * 90),
		logger:     logger,
		apiBase:    cfg.APIBase,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		sysPrompt:  models.SystemPrompt,
	}, nil
}

func createClient(connectTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}
			return dialer.DialContext(ctx, network, addr)
		},
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: connectTimeout,
	}
	// no overall timeout; responses stream
	return &http.Client{
		Transport: transport,
		Timeout:   0,
	}
}

func (c *Client) post(ctx context.Context, url string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("api status %d, unreadable body: %w", resp.StatusCode, readErr)
		}
		return nil, errors.New(extractAPIError(body, resp.StatusCode))
	}
	return resp, nil
}

// extractAPIError pulls the error message out of a structured error body.
func extractAPIError(body []byte, statusCode int) string {
	var errResp struct {
		Error *models.APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		return fmt.Sprintf("api error: %s (code %d)", errResp.Error.Message, errResp.Error.Code)
	}
	return fmt.Sprintf("api status %d: %s", statusCode, string(body))
}
