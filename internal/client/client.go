package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sentinel/internal/domain"
)

// Client is a minimal Decision Service HTTP client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// ServiceError is a structured failure reported by the service. It is
// recognised by the presence of error_code, whatever the HTTP status.
type ServiceError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Decide submits ticket text verbatim.
func (c *Client) Decide(ctx context.Context, ticketText string) (domain.DecisionResult, error) {
	var resp domain.DecisionResult
	err := c.do(ctx, http.MethodPost, "decide", domain.TicketRequest{TicketText: ticketText}, &resp)
	return resp, err
}

// History returns the most recent runs, newest first. A page without items
// yields an empty, non-nil slice.
func (c *Client) History(ctx context.Context, limit int) ([]domain.HistoryItem, error) {
	endpoint := "history"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp domain.HistoryPage
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Items == nil {
		resp.Items = []domain.HistoryItem{}
	}
	return resp.Items, nil
}

// Health probes the service.
func (c *Client) Health(ctx context.Context) (domain.Health, error) {
	var resp domain.Health
	err := c.do(ctx, http.MethodGet, "health", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Cache-Control", "no-store")
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	return decode(data, resp.StatusCode, out)
}

// decode splits a body into a ServiceError or the expected payload. The
// status code is carried along for diagnostics only. Any non-null error_code
// marks a failure, whatever its JSON type.
func decode(data []byte, status int, out any) error {
	var probe struct {
		Code    json.RawMessage `json:"error_code"`
		Message json.RawMessage `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("malformed response (status %d): %w", status, err)
	}
	if present(probe.Code) {
		return &ServiceError{
			Code:       rawText(probe.Code),
			Message:    rawText(probe.Message),
			Detail:     rawText(probe.Detail),
			StatusCode: status,
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("malformed response (status %d): %w", status, err)
	}
	return nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// rawText returns a JSON string's value, or the literal text of any other
// JSON value.
func rawText(raw json.RawMessage) string {
	if !present(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
