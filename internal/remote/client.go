// Package remote implements the client for the central POS API. The server
// accepts the client-generated local key as an idempotency token, so
// re-submitting an identical mutation after a crash-before-ack cannot
// create a duplicate record.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	apperrors "github.com/tilldesk/possync/internal/errors"
	"github.com/tilldesk/possync/internal/models"
)

const (
	apiMediaType       = "application/json"
	idempotencyHeader  = "Idempotency-Key"
	defaultHTTPTimeout = 15 * time.Second
)

// TokenSource supplies the current access token for outbound requests.
// Implemented by auth.Provider.
type TokenSource interface {
	Token() string
}

// Config holds remote client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is the resty-backed POS API client.
type Client struct {
	http   *resty.Client
	tokens TokenSource
}

// NewClient creates a Client against the given base URL.
func NewClient(cfg Config, tokens TokenSource) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Accept", apiMediaType).
		SetHeader("Content-Type", apiMediaType).
		SetTimeout(timeout)

	return &Client{http: httpClient, tokens: tokens}
}

// MutationResult is the server acknowledgment of a mutation.
type MutationResult struct {
	ServerID int64 `json:"id"`
}

// resourcePaths maps entity types to their REST collections.
var resourcePaths = map[string]string{
	models.EntityShift:     "/v1/shifts",
	models.EntityInventory: "/v1/inventory-entries",
	models.EntityOrder:     "/v1/orders",
}

// Apply submits one queued mutation and returns the server acknowledgment.
// The item's DataID rides along as the idempotency key on every call.
func (c *Client) Apply(ctx context.Context, item *models.SyncQueueItem) (*MutationResult, error) {
	switch item.Action {
	case models.ActionCreate:
		return c.Create(ctx, item.EntityType, item.DataID, item.Payload)
	case models.ActionUpdate:
		return c.Update(ctx, item.EntityType, item.DataID, item.Payload)
	case models.ActionClose:
		return c.CloseEntity(ctx, item.EntityType, item.DataID, item.Payload)
	case models.ActionDelete:
		return c.Delete(ctx, item.EntityType, item.DataID)
	default:
		return nil, apperrors.Newf(apperrors.ErrValidation, "unknown queue action %q", item.Action)
	}
}

// Create POSTs a new entity.
func (c *Client) Create(ctx context.Context, entityType, localKey string, payload json.RawMessage) (*MutationResult, error) {
	path, err := collectionPath(entityType)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, http.MethodPost, path, localKey, payload)
}

// Update PUTs an entity addressed by its local key.
func (c *Client) Update(ctx context.Context, entityType, localKey string, payload json.RawMessage) (*MutationResult, error) {
	path, err := collectionPath(entityType)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, http.MethodPut, path+"/"+localKey, localKey, payload)
}

// CloseEntity POSTs the close sub-resource. The payload carries the full
// entity snapshot plus close fields so the server can apply a
// create-then-close sequence when the create never reached it.
func (c *Client) CloseEntity(ctx context.Context, entityType, localKey string, payload json.RawMessage) (*MutationResult, error) {
	path, err := collectionPath(entityType)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, http.MethodPost, path+"/"+localKey+"/close", localKey, payload)
}

// Delete removes an entity addressed by its local key.
func (c *Client) Delete(ctx context.Context, entityType, localKey string) (*MutationResult, error) {
	path, err := collectionPath(entityType)
	if err != nil {
		return nil, err
	}

	resp, err := c.request(ctx, localKey).Delete(path + "/" + localKey)
	if err != nil {
		return nil, apperrors.Network("delete request failed", err)
	}
	if resp.IsError() {
		return nil, errorFromResponse(resp)
	}
	return &MutationResult{}, nil
}

// Probe issues a cheap health check. Used by the connectivity monitor only;
// sync correctness never depends on it.
func (c *Client) Probe(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Head("/v1/health")
	if err != nil {
		return apperrors.Network("health probe failed", err)
	}
	if resp.IsError() {
		return errorFromResponse(resp)
	}
	return nil
}

func (c *Client) submit(ctx context.Context, method, path, localKey string, payload json.RawMessage) (*MutationResult, error) {
	var result MutationResult
	req := c.request(ctx, localKey).
		SetBody(payload).
		SetResult(&result)

	var resp *resty.Response
	var err error
	switch method {
	case http.MethodPost:
		resp, err = req.Post(path)
	case http.MethodPut:
		resp, err = req.Put(path)
	default:
		return nil, apperrors.Newf(apperrors.ErrValidation, "unsupported method %q", method)
	}

	if err != nil {
		return nil, apperrors.Network(fmt.Sprintf("%s %s failed", method, path), err)
	}
	if resp.IsError() {
		return nil, errorFromResponse(resp)
	}
	return &result, nil
}

func (c *Client) request(ctx context.Context, localKey string) *resty.Request {
	req := c.http.R().
		SetContext(ctx).
		SetHeader(idempotencyHeader, localKey)
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.SetAuthScheme("Bearer")
			req.SetAuthToken(token)
		}
	}
	return req
}

func collectionPath(entityType string) (string, error) {
	path, ok := resourcePaths[entityType]
	if !ok {
		return "", apperrors.Newf(apperrors.ErrValidation, "unknown entity type %q", entityType)
	}
	return path, nil
}

// errorFromResponse maps HTTP failures onto the sync error taxonomy:
// auth failures block the queue, transient server trouble is retried,
// everything else is a validation rejection that stays visible on the item.
func errorFromResponse(resp *resty.Response) error {
	body := strings.TrimSpace(resp.String())
	detail := resp.Status()
	if body != "" {
		detail = fmt.Sprintf("%s: %s", resp.Status(), body)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperrors.Auth(detail, nil)
	case code == http.StatusTooManyRequests || code >= 500:
		return apperrors.Network(detail, nil)
	default:
		return apperrors.New(apperrors.ErrValidation, detail)
	}
}
