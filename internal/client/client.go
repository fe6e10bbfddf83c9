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

	"paycore.org/internal/engine"
)

// Client talks to the paycore HTTP API. It is used by the workload driver
// and by operators scripting against a running service.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// Option configures the client.
type Option func(*Client)

// WithToken attaches a bearer token to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// New creates a client with sensible defaults.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError carries a non-2xx response from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

// TransactionResult is the service's answer to a submitted record.
type TransactionResult struct {
	Outcome string          `json:"outcome"`
	Account engine.Snapshot `json:"account"`
}

// BatchResult summarises an ingested CSV batch.
type BatchResult struct {
	BatchID string       `json:"batch_id"`
	Stats   engine.Stats `json:"stats"`
}

type transactionRequest struct {
	Type   string `json:"type"`
	Client uint16 `json:"client"`
	Tx     uint32 `json:"tx"`
	Amount string `json:"amount,omitempty"`
}

type accountsResponse struct {
	Items []engine.Snapshot `json:"items"`
}

// Submit applies a single record.
func (c *Client) Submit(ctx context.Context, rec engine.Record) (TransactionResult, error) {
	req := transactionRequest{
		Type:   rec.Type.String(),
		Client: rec.Client,
		Tx:     rec.Tx,
	}
	if rec.Type.HasAmount() {
		req.Amount = rec.Amount.String()
	}
	var out TransactionResult
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", "application/json", jsonBody(req), &out); err != nil {
		return TransactionResult{}, err
	}
	return out, nil
}

// Accounts fetches every account snapshot.
func (c *Client) Accounts(ctx context.Context) ([]engine.Snapshot, error) {
	var out accountsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/accounts", "", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Account fetches a single account snapshot.
func (c *Client) Account(ctx context.Context, client uint16) (engine.Snapshot, error) {
	var out engine.Snapshot
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/accounts/%d", client), "", nil, &out); err != nil {
		return engine.Snapshot{}, err
	}
	return out, nil
}

// UploadBatch streams a CSV transaction batch to the service.
func (c *Client) UploadBatch(ctx context.Context, body io.Reader) (BatchResult, error) {
	var out BatchResult
	if err := c.do(ctx, http.MethodPost, "/v1/batches", "text/csv", body, &out); err != nil {
		return BatchResult{}, err
	}
	return out, nil
}

// Health checks the liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
}

func jsonBody(v any) io.Reader {
	data, _ := json.Marshal(v)
	return bytes.NewReader(data)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, dst any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		msg := http.StatusText(resp.StatusCode)
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err == nil && payload.Error != "" {
			msg = payload.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if dst == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
