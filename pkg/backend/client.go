package backend

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

	pkgerrors "github.com/giftbasket/giftcart/pkg/errors"
)

const (
	DefaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1024
)

var errBaseURLRequired = errors.New("backend base url is required")

// StatusError carries the HTTP status returned by the backend.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// StatusCode exposes the upstream status to error dumps.
func (e *StatusError) StatusCode() int {
	return e.Status
}

// Client talks to the commerce backend that owns products, add-ons and orders.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sets the bearer key sent on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a backend client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return client, nil
}

// GetProduct fetches a product from the catalog.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required").WithDetails(map[string]any{"field": "product_id"})
	}
	var product Product
	if err := c.do(ctx, http.MethodGet, "products/"+url.PathEscape(id), nil, &product); err != nil {
		return nil, annotate(err, "fetch product")
	}
	return &product, nil
}

// GetAdditional fetches an add-on from the catalog.
func (c *Client) GetAdditional(ctx context.Context, id string) (*Additional, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "additional id is required").WithDetails(map[string]any{"field": "additional_id"})
	}
	var additional Additional
	if err := c.do(ctx, http.MethodGet, "additionals/"+url.PathEscape(id), nil, &additional); err != nil {
		return nil, annotate(err, "fetch additional")
	}
	return &additional, nil
}

// CreateDraftOrder creates a draft order and returns it with its server id.
func (c *Client) CreateDraftOrder(ctx context.Context, req DraftOrderRequest) (*Order, error) {
	req.IsDraft = true
	var order Order
	if err := c.do(ctx, http.MethodPost, "orders", req, &order); err != nil {
		return nil, annotate(err, "create draft order")
	}
	if order.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "create draft order: backend returned no id")
	}
	return &order, nil
}

// ReplaceDraftOrderItems overwrites the item list of a draft order.
func (c *Client) ReplaceDraftOrderItems(ctx context.Context, draftID string, items []OrderItem) error {
	if items == nil {
		items = []OrderItem{}
	}
	body := struct {
		Items []OrderItem `json:"items"`
	}{Items: items}
	return annotate(c.do(ctx, http.MethodPut, orderPath(draftID, "items"), body, nil), "replace draft items")
}

// UpdateDraftOrderMetadata patches the non-item fields of a draft order.
func (c *Client) UpdateDraftOrderMetadata(ctx context.Context, draftID string, meta DraftMetadata) error {
	return annotate(c.do(ctx, http.MethodPatch, orderPath(draftID), meta, nil), "update draft metadata")
}

// DeleteOrder removes an order, typically an abandoned draft.
func (c *Client) DeleteOrder(ctx context.Context, orderID string) error {
	return annotate(c.do(ctx, http.MethodDelete, orderPath(orderID), nil, nil), "delete order")
}

// FetchOrder loads an order with its items.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodGet, orderPath(orderID), nil, &order); err != nil {
		return nil, annotate(err, "fetch order")
	}
	return &order, nil
}

// SubmitOrder places a final order.
func (c *Client) SubmitOrder(ctx context.Context, req SubmitOrderRequest) (*Order, error) {
	req.IsDraft = false
	var order Order
	if err := c.do(ctx, http.MethodPost, "orders", req, &order); err != nil {
		return nil, annotate(err, "submit order")
	}
	return &order, nil
}

func orderPath(id string, suffix ...string) string {
	parts := append([]string{"orders", url.PathEscape(strings.TrimSpace(id))}, suffix...)
	return strings.Join(parts, "/")
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "backend client not configured")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return statusError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode response")
	}
	return nil
}

func statusError(status int, body string) error {
	cause := &StatusError{Status: status, Body: body}
	switch {
	case status == http.StatusNotFound:
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, cause, "resource not found")
	case status == http.StatusConflict:
		return pkgerrors.Wrap(pkgerrors.CodeConflict, cause, "backend conflict")
	case status >= 400 && status < 500:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, "backend rejected request")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "backend request failed")
	}
}

// annotate prefixes the operation name while keeping the original code.
func annotate(err error, op string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return pkgerrors.Wrap(typed.Code(), err, op)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}
