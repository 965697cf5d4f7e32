package sellconfigsdk

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

// Client is a minimal sell-config admin API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://localhost:8080/api/admin.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// SaveRequest is the upsert body. Version > 0 enables optimistic locking.
type SaveRequest struct {
	ProductID string   `json:"productId"`
	Steps     []Step   `json:"steps"`
	Rules     RuleSet  `json:"rules"`
	Options   []Option `json:"options,omitempty"`
	Version   int64    `json:"version,omitempty"`
}

// PricingRequest previews a price against a product's stored rules.
type PricingRequest struct {
	BasePrice   float64      `json:"basePrice"`
	Adjustments []Adjustment `json:"adjustments,omitempty"`
	Selected    []string     `json:"selected,omitempty"`
}

// Event is an audit entry.
type Event struct {
	ID        int64          `json:"id"`
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	ProductID string         `json:"productId"`
	ActorID   string         `json:"actorId"`
	Payload   map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"nextCursor"`
}

// APIError is a success=false envelope returned by the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

// Kind maps the server code back to an error kind, or "" when unknown.
func (e *APIError) Kind() Kind {
	switch k := Kind(e.Code); k {
	case KindInvalidAdjustment, KindInvalidEnum, KindInvalidRuleSet,
		KindInvalidInput, KindMissingRuleSet, KindIndexOutOfRange,
		KindVersionConflict, KindNotFound:
		return k
	}
	return ""
}

// Is lets errors.Is(err, ErrVersionConflict) and friends work on
// server-side failures.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*Error)
	kind := e.Kind()
	return ok && kind != "" && t.Kind == kind
}

// Retryable reports whether repeating the same request may succeed.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// NetworkError is a transport failure; the server may not have seen the request.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }
func (e *NetworkError) Retryable() bool {
	return true
}
func (e *NetworkError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == KindNetwork
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

// GetSellConfig fetches a product's configuration.
func (c *Client) GetSellConfig(ctx context.Context, productID string) (SellConfig, error) {
	var resp SellConfig
	err := c.do(ctx, http.MethodGet, productPath(productID, ""), nil, &resp)
	return resp, err
}

// ListSellConfigs returns a summary per configured product.
func (c *Client) ListSellConfigs(ctx context.Context) ([]SellConfigSummary, error) {
	var resp []SellConfigSummary
	err := c.do(ctx, http.MethodGet, "sell-config", nil, &resp)
	return resp, err
}

// SaveSellConfig validates locally, then upserts. Invalid input never
// leaves the process.
func (c *Client) SaveSellConfig(ctx context.Context, req SaveRequest) (SellConfig, error) {
	if strings.TrimSpace(req.ProductID) == "" {
		return SellConfig{}, newError(KindInvalidInput, "productId is required")
	}
	if err := req.Rules.Validate(); err != nil {
		return SellConfig{}, err
	}
	if err := ValidateSteps(req.Steps); err != nil {
		return SellConfig{}, err
	}
	if err := ValidateOptions(req.Options); err != nil {
		return SellConfig{}, err
	}
	var resp SellConfig
	err := c.do(ctx, http.MethodPost, "sell-config", req, &resp)
	return resp, err
}

// UpdateRules replaces only the pricing rules.
func (c *Client) UpdateRules(ctx context.Context, productID string, rules RuleSet) (SellConfig, error) {
	if err := rules.Validate(); err != nil {
		return SellConfig{}, err
	}
	body := map[string]any{"rules": rules}
	var resp SellConfig
	err := c.do(ctx, http.MethodPut, productPath(productID, "rules"), body, &resp)
	return resp, err
}

// ResetSellConfig restores the default rules and steps.
func (c *Client) ResetSellConfig(ctx context.Context, productID string) (SellConfig, error) {
	var resp SellConfig
	err := c.do(ctx, http.MethodPost, productPath(productID, "reset"), nil, &resp)
	return resp, err
}

// DeleteSellConfig removes a product's configuration.
func (c *Client) DeleteSellConfig(ctx context.Context, productID string) error {
	return c.do(ctx, http.MethodDelete, productPath(productID, ""), nil, nil)
}

// TestPricing previews a price. Nothing is persisted server-side.
func (c *Client) TestPricing(ctx context.Context, productID string, req PricingRequest) (PricingResult, error) {
	if req.BasePrice <= 0 {
		return PricingResult{}, newError(KindInvalidInput, "basePrice must be greater than zero, got %v", req.BasePrice)
	}
	for i, adj := range req.Adjustments {
		if err := adj.Validate(); err != nil {
			return PricingResult{}, newError(KindOf(err), "adjustment %d (%s): %v", i, adj.Label, err)
		}
	}
	var resp PricingResult
	err := c.do(ctx, http.MethodPost, productPath(productID, "test-pricing"), req, &resp)
	return resp, err
}

// Events returns a page of a product's audit history, newest first.
func (c *Client) Events(ctx context.Context, productID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := productPath(productID, "events")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &NetworkError{Op: method + " " + endpoint, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: "read response", Err: err}
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// IsRetryable reports whether err came from a failure worth retrying.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	return errors.As(err, &r) && r.Retryable()
}

func productPath(productID, suffix string) string {
	p := "sell-config/" + url.PathEscape(productID)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
