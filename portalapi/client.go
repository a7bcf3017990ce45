/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

// Package portalapi provides typed access to the REST backend of the security services portal.
//
// Reads go through a resultcache.Cache: keys are canonical resource paths (e.g. "service_requests/42",
// "service_requests?limit=50&status=new"), so identical reads issued by many handlers at once cause
// a single backend request and repeated reads are served from memory. Writes are sent directly
// and invalidate the keys they affect.
package portalapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bigschom/ss-portal/httpclient"
	"github.com/bigschom/ss-portal/httpserver/middleware"
	"github.com/bigschom/ss-portal/log"
	"github.com/bigschom/ss-portal/requestqueue"
	"github.com/bigschom/ss-portal/restapi"
	"github.com/bigschom/ss-portal/resultcache"
	"github.com/bigschom/ss-portal/retry"
)

// Default values.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
	DefaultUserAgent = "ss-portal-cache"
)

// Backend tables.
const (
	tableServiceRequests = "service_requests"
	tableUsers           = "users"
	tableAuditLogs       = "audit_logs"
)

const restPathPrefix = "/rest/v1/"

const usersColumns = "id,username,full_name,role,active"

// Request types used in metrics and logs of outgoing requests.
const (
	requestTypeGetServiceRequest    = "get_service_request"
	requestTypeListServiceRequests  = "list_service_requests"
	requestTypeUpdateServiceRequest = "update_service_request"
	requestTypeGetUser              = "get_user"
	requestTypeListUsers            = "list_users"
	requestTypeListAuditLogs        = "list_audit_logs"
)

// Validation errors.
var (
	ErrEmptyID       = errors.New("id must not be empty")
	ErrInvalidStatus = errors.New("invalid service request status")
	ErrInvalidType   = errors.New("invalid service type")
	ErrInvalidLimit  = fmt.Errorf("limit must be in range [0, %d]", MaxListLimit)
)

// ClientOpts represents options for the Client.
type ClientOpts struct {
	Logger    log.FieldLogger
	UserAgent string

	// MetricsCollector collects durations of backend requests. No metrics are collected when nil.
	MetricsCollector httpclient.MetricsCollector

	// Transport is the innermost round tripper. http.DefaultTransport clone is used when nil.
	Transport http.RoundTripper
}

// Client reads and updates portal resources.
type Client struct {
	baseURL      *url.URL
	httpClient   *http.Client
	cache        *resultcache.Cache[[]byte]
	retryPolicy  retry.Policy
	auditLogsTTL time.Duration
	logger       log.FieldLogger
}

// NewClient creates a new Client. Reads are served through the cache.
func NewClient(cfg *Config, cache *resultcache.Cache[[]byte], opts ClientOpts) (*Client, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache must not be nil")
	}
	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	var apiKeyProvider httpclient.APIKeyProvider
	if cfg.APIKey != "" {
		apiKeyProvider = httpclient.StaticAPIKey(cfg.APIKey)
	}
	httpClient, err := httpclient.NewWithOpts(&cfg.HTTPClient, httpclient.Opts{
		UserAgent:      opts.UserAgent,
		Delegate:       opts.Transport,
		Logger:         opts.Logger,
		APIKeyProvider: apiKeyProvider,
		Collector:      opts.MetricsCollector,
	})
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}

	auditLogsTTL := cfg.AuditLogsTTL.Duration()
	if auditLogsTTL <= 0 {
		auditLogsTTL = DefaultAuditLogsTTL
	}
	return &Client{
		baseURL:      baseURL,
		httpClient:   httpClient,
		cache:        cache,
		retryPolicy:  cfg.Retries.Policy(),
		auditLogsTTL: auditLogsTTL,
		logger:       opts.Logger,
	}, nil
}

// Cache returns the cache used for reads.
func (c *Client) Cache() *resultcache.Cache[[]byte] {
	return c.cache
}

// GetServiceRequest returns the service request by its ID.
// A missing request is reported as *restapi.ClientError with 404 status.
func (c *Client) GetServiceRequest(ctx context.Context, id string) (*ServiceRequest, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	query := url.Values{"id": {"eq." + id}}
	var items []ServiceRequest
	err := c.getCachedItem(ctx, ServiceRequestKey(id), requestTypeGetServiceRequest, tableServiceRequests, id, query, &items)
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// ListServiceRequests returns the newest service requests matching the filter.
func (c *Client) ListServiceRequests(ctx context.Context, filter ServiceRequestFilter) ([]ServiceRequest, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, ErrInvalidStatus
	}
	if filter.ServiceType != "" && !filter.ServiceType.IsValid() {
		return nil, ErrInvalidType
	}
	limit, err := normalizeLimit(filter.Limit)
	if err != nil {
		return nil, err
	}
	filter.Limit = limit

	query := url.Values{"order": {"created_at.desc"}, "limit": {strconv.Itoa(limit)}}
	if filter.Status != "" {
		query.Set("status", "eq."+string(filter.Status))
	}
	if filter.ServiceType != "" {
		query.Set("service_type", "eq."+string(filter.ServiceType))
	}
	items := []ServiceRequest{}
	err = c.getCached(ctx, ServiceRequestListKey(filter), 0, requestTypeListServiceRequests, tableServiceRequests, query, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// GetUser returns the user by its ID.
func (c *Client) GetUser(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	query := url.Values{"id": {"eq." + id}, "select": {usersColumns}}
	var items []User
	if err := c.getCachedItem(ctx, UserKey(id), requestTypeGetUser, tableUsers, id, query, &items); err != nil {
		return nil, err
	}
	return &items[0], nil
}

// ListUsers returns all portal users ordered by username.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	query := url.Values{"select": {usersColumns}, "order": {"username.asc"}}
	items := []User{}
	if err := c.getCached(ctx, UsersKey, 0, requestTypeListUsers, tableUsers, query, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ListAuditLogs returns the newest audit log records. Results are cached for Config.AuditLogsTTL.
func (c *Client) ListAuditLogs(ctx context.Context, filter AuditLogFilter) ([]AuditLog, error) {
	limit, err := normalizeLimit(filter.Limit)
	if err != nil {
		return nil, err
	}
	filter.Limit = limit

	query := url.Values{"order": {"created_at.desc"}, "limit": {strconv.Itoa(limit)}}
	if filter.UserID != "" {
		query.Set("user_id", "eq."+filter.UserID)
	}
	items := []AuditLog{}
	err = c.getCached(ctx, AuditLogListKey(filter), c.auditLogsTTL, requestTypeListAuditLogs, tableAuditLogs, query, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Warmup fetches the service requests concurrently, so the following reads are served from the cache.
// Fetches go through the cache and its queue, so the backend sees no more concurrent requests than the queue allows.
func (c *Client) Warmup(ctx context.Context, ids []string) error {
	g, gCtx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if _, err := c.GetServiceRequest(gCtx, id); err != nil {
				return fmt.Errorf("warm up service request %q: %w", id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.logger.Info("cache warmed up", log.Int("service_requests", len(ids)))
	return nil
}

// UpdateServiceRequestStatus sets the status of the service request and returns the updated request.
// The cached request and all cached lists of service requests are invalidated on success.
func (c *Client) UpdateServiceRequestStatus(ctx context.Context, id string, status Status) (*ServiceRequest, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	u := c.resourceURL(tableServiceRequests, url.Values{"id": {"eq." + id}})
	body := map[string]interface{}{"status": status, "updated_at": time.Now().UTC()}
	var items []ServiceRequest

	// Setting an absolute status is safe to repeat.
	ctx = httpclient.NewContextWithIdempotentHint(ctx, true)
	err := c.doJSON(ctx, http.MethodPatch, requestTypeUpdateServiceRequest, u, body, &items)
	if err != nil {
		return nil, err
	}

	c.cache.Invalidate(ServiceRequestKey(id))
	c.cache.InvalidatePrefix(ServiceRequestListKeyPrefix)
	c.loggerFor(ctx).Info("service request status updated",
		log.String("service_request_id", id), log.String("status", string(status)))

	if len(items) == 0 {
		return nil, newNotFoundError(tableServiceRequests, id)
	}
	return &items[0], nil
}

// getCached reads the table through the cache and decodes the JSON body into result.
func (c *Client) getCached(
	ctx context.Context, key string, ttl time.Duration, requestType, table string, query url.Values, result interface{},
) error {
	return c.getCachedWithOp(ctx, key, ttl, result, c.fetchOp(requestType, table, query, ""))
}

// getCachedItem is like getCached but for a single row selected by ID. An empty result set is reported
// as a not found remote error, so it is cached for the error window instead of the full TTL.
func (c *Client) getCachedItem(
	ctx context.Context, key, requestType, table, id string, query url.Values, result interface{},
) error {
	return c.getCachedWithOp(ctx, key, 0, result, c.fetchOp(requestType, table, query, id))
}

func (c *Client) getCachedWithOp(
	ctx context.Context, key string, ttl time.Duration, result interface{}, op requestqueue.Operation[[]byte],
) error {
	data, err := c.cache.GetWithTTL(ctx, key, op, ttl)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (c *Client) fetchOp(requestType, table string, query url.Values, itemID string) requestqueue.Operation[[]byte] {
	u := c.resourceURL(table, query)
	return func(ctx context.Context) ([]byte, error) {
		var raw json.RawMessage
		if err := c.doJSON(ctx, http.MethodGet, requestType, u, nil, &raw); err != nil {
			return nil, err
		}
		if itemID != "" {
			var rows []json.RawMessage
			if err := json.Unmarshal(raw, &rows); err != nil {
				return nil, fmt.Errorf("decode %s rows: %w", table, err)
			}
			if len(rows) == 0 {
				return nil, newNotFoundError(table, itemID)
			}
		}
		return raw, nil
	}
}

func (c *Client) doJSON(ctx context.Context, method, requestType, u string, body, result interface{}) error {
	ctx = httpclient.NewContextWithRequestType(ctx, requestType)
	logger := c.loggerFor(ctx)
	attempt := func(ctx context.Context) error {
		var req *http.Request
		var err error
		if body != nil {
			req, err = restapi.NewJSONRequest(ctx, method, u, body)
		} else {
			req, err = http.NewRequestWithContext(ctx, method, u, http.NoBody)
		}
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", restapi.ContentTypeAppJSON)
		if method == http.MethodPatch {
			req.Header.Set("Prefer", "return=representation")
		}
		return restapi.DoRequestAndUnmarshalJSON(c.httpClient, req, result, logger)
	}

	if c.retryPolicy == nil || !isRepeatable(ctx, method) {
		return attempt(ctx)
	}
	return retry.DoWithRetry(ctx, c.retryPolicy, IsRetryableError,
		retry.LogNotify(logger, fmt.Sprintf("backend request %s failed, retrying", requestType)), attempt)
}

func (c *Client) resourceURL(table string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + restPathPrefix + table
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) loggerFor(ctx context.Context) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(ctx); logger != nil {
		return logger
	}
	return c.logger
}

func isRepeatable(ctx context.Context, method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return httpclient.GetIdempotentHintFromContext(ctx)
}

// IsRetryableError reports whether a failed backend request may succeed if repeated:
// the backend is throttling or failing (429, 5xx) or the network is temporarily unavailable.
func IsRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var clientErr *restapi.ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Retryable()
	}
	var rateLimitErr *httpclient.RateLimitingWaitError
	if errors.As(err, &rateLimitErr) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func normalizeLimit(limit int) (int, error) {
	if limit < 0 || limit > MaxListLimit {
		return 0, ErrInvalidLimit
	}
	if limit == 0 {
		return DefaultListLimit, nil
	}
	return limit, nil
}

func newNotFoundError(table, id string) *restapi.ClientError {
	return &restapi.ClientError{
		Method:     http.MethodGet,
		URL:        &url.URL{Path: restPathPrefix + table + "/" + id},
		StatusCode: http.StatusNotFound,
		Code:       restapi.ErrCodeNotFound,
		Message:    fmt.Sprintf("%s %q not found", strings.TrimSuffix(strings.ReplaceAll(table, "_", " "), "s"), id),
	}
}
