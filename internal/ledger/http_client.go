package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/pullstream-backend/pkg/errors"
)

const (
	transfersPath               = "v1/transfers"
	responseBodyReadLimit int64 = 1024
	defaultHTTPTimeout          = 10 * time.Second
)

var errBaseURLRequired = errors.New("ledger base url is required")

// HTTPClient talks to the custody service over its JSON API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *HTTPClient) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithTimeout bounds each request when the default HTTP client is used.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewHTTPClient builds a custody client rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...Option) (*HTTPClient, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	client := &HTTPClient{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type transferPayload struct {
	TransferID string `json:"transfer_id"`
	GigID      uint64 `json:"gig_id"`
	Kind       string `json:"kind"`
	From       string `json:"from"`
	To         string `json:"to"`
	Amount     string `json:"amount"`
}

type transferResponse struct {
	ReceiptID   string    `json:"receipt_id"`
	TransferID  string    `json:"transfer_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// Transfer posts the instruction. 2xx is success, a 4xx other than 408/429
// is a RejectedError, everything else is a retryable dependency error.
func (c *HTTPClient) Transfer(ctx context.Context, req TransferRequest) (Receipt, error) {
	if c == nil {
		return Receipt{}, pkgerrors.New(pkgerrors.CodeDependency, "ledger client not configured")
	}
	if err := req.validate(); err != nil {
		return Receipt{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transfer request")
	}

	body, err := json.Marshal(transferPayload{
		TransferID: req.TransferID.String(),
		GigID:      req.GigID,
		Kind:       string(req.Kind),
		From:       req.Escrow,
		To:         req.To,
		Amount:     req.Amount.String(),
	})
	if err != nil {
		return Receipt{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal transfer request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+transfersPath, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build transfer request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.TransferID.String())
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Receipt{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute transfer request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		reason := strings.TrimSpace(string(msg))
		if isPermanentStatus(resp.StatusCode) {
			return Receipt{}, &RejectedError{Status: resp.StatusCode, Reason: reason}
		}
		return Receipt{}, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, reason), "transfer request failed")
	}

	var out transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Receipt{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode transfer response")
	}
	if out.ReceiptID == "" {
		return Receipt{}, pkgerrors.New(pkgerrors.CodeDependency, "transfer response missing receipt id")
	}
	if out.CompletedAt.IsZero() {
		out.CompletedAt = time.Now().UTC()
	}
	return Receipt{
		ID:          out.ReceiptID,
		TransferID:  req.TransferID,
		CompletedAt: out.CompletedAt.UTC(),
	}, nil
}

func isPermanentStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false
	}
	return status >= 400 && status < 500
}
