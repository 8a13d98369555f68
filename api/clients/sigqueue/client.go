package sigqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

// Status mirrors the record served by GET /accounts/{id}/sign/{tx}.
type Status struct {
	TransactionID string `json:"transactionId"`
	Complete      bool   `json:"complete"`
	Valid         *bool  `json:"valid,omitempty"`
}

// APIError is a non-2xx response from the admission API.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("sigqueue: status %d", e.StatusCode)
	}
	return fmt.Sprintf("sigqueue: status %d %s: %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = client
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

func (c *Client) Register(ctx context.Context, accountID, pubKey string) error {
	if accountID == "" {
		return errors.New("account id is required")
	}
	path := "/accounts/" + url.PathEscape(accountID)
	return c.do(ctx, http.MethodPost, path, map[string]string{"pubKey": pubKey}, nil)
}

func (c *Client) Submit(ctx context.Context, accountID, transactionID, payload, signature string) error {
	if accountID == "" || transactionID == "" {
		return errors.New("account id and transaction id are required")
	}
	body := map[string]string{"payload": payload, "signature": signature}
	return c.do(ctx, http.MethodPost, signPath(accountID, transactionID), body, nil)
}

func (c *Client) Status(ctx context.Context, accountID, transactionID string) (Status, error) {
	if accountID == "" || transactionID == "" {
		return Status{}, errors.New("account id and transaction id are required")
	}
	var status Status
	if err := c.do(ctx, http.MethodGet, signPath(accountID, transactionID), nil, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// WaitComplete polls Status until the record is complete or ctx is done.
func (c *Client) WaitComplete(ctx context.Context, accountID, transactionID string, interval time.Duration) (Status, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status, err := c.Status(ctx, accountID, transactionID)
		if err != nil {
			return Status{}, err
		}
		if status.Complete {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

func signPath(accountID, transactionID string) string {
	return fmt.Sprintf("/accounts/%s/sign/%s", url.PathEscape(accountID), url.PathEscape(transactionID))
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c == nil || c.BaseURL == "" {
		return errors.New("sigqueue base URL is required")
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
