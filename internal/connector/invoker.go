package connector

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/jeffkos/form-ease-sub004/internal/common/cache"
	"github.com/jeffkos/form-ease-sub004/internal/common/errors"
	"github.com/jeffkos/form-ease-sub004/internal/common/logging"
	"github.com/jeffkos/form-ease-sub004/internal/common/ratelimit"
	"github.com/jeffkos/form-ease-sub004/internal/common/utils"
)

// Request describes one call to an external service. When GraphQL is set the
// request is sent as POST {query, variables} regardless of Method.
type Request struct {
	Method    string                 `json:"method,omitempty"`
	URL       string                 `json:"url"`
	Headers   map[string]string      `json:"headers,omitempty"`
	Body      interface{}            `json:"body,omitempty"`
	GraphQL   string                 `json:"graphql,omitempty"`
	Variables map[string]interface{} `json:"variables,omitempty"`
	Timeout   time.Duration          `json:"timeout,omitempty"`
	// CacheTTL overrides the invoker's default TTL for cacheable calls
	CacheTTL time.Duration `json:"cacheTtl,omitempty"`
}

// Response is the outcome of an invoked request
type Response struct {
	StatusCode int         `json:"statusCode"`
	Headers    http.Header `json:"headers,omitempty"`
	Body       []byte      `json:"body,omitempty"`
	FromCache  bool        `json:"fromCache,omitempty"`
}

// InvokerOptions tunes caching, rate limiting, concurrency, and retry
type InvokerOptions struct {
	// CacheTTL is the default lifetime of cached GET/query responses
	CacheTTL time.Duration

	// RateLimit / RateWindow bound requests per connection per window
	RateLimit  int
	RateWindow time.Duration

	// MaxConcurrent caps in-flight requests across all connections
	MaxConcurrent int

	Retry utils.RetryConfig

	// ResponseCache overrides the default in-process cache, e.g. with the
	// Redis-backed adapter
	ResponseCache cache.Cache
}

// DefaultInvokerOptions returns the invoker defaults: 5 minute response cache,
// 60 requests per minute per connection, 10 concurrent requests, 3 attempts
// with exponential backoff
func DefaultInvokerOptions() InvokerOptions {
	retry := utils.DefaultRetryConfig()
	retry.InitialDelay = 500 * time.Millisecond
	retry.MaxDelay = 10 * time.Second
	return InvokerOptions{
		CacheTTL:      5 * time.Minute,
		RateLimit:     60,
		RateWindow:    time.Minute,
		MaxConcurrent: 10,
		Retry:         retry,
	}
}

// Invoker executes requests on behalf of integration instances
type Invoker struct {
	connections *Connections
	httpClient  *http.Client
	responses   cache.Cache
	limiter     *ratelimit.FixedWindow
	slots       chan struct{}
	options     InvokerOptions
	logger      logging.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewInvoker creates an invoker for the given connection manager. A nil
// httpClient falls back to a client with a 30s timeout.
func NewInvoker(connections *Connections, httpClient *http.Client, options InvokerOptions, logger logging.Logger) *Invoker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if options.CacheTTL <= 0 {
		options.CacheTTL = DefaultInvokerOptions().CacheTTL
	}
	if options.RateLimit <= 0 {
		options.RateLimit = DefaultInvokerOptions().RateLimit
	}
	if options.RateWindow <= 0 {
		options.RateWindow = DefaultInvokerOptions().RateWindow
	}
	if options.MaxConcurrent <= 0 {
		options.MaxConcurrent = DefaultInvokerOptions().MaxConcurrent
	}
	if options.Retry.MaxAttempts <= 0 {
		options.Retry = DefaultInvokerOptions().Retry
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if options.ResponseCache == nil {
		options.ResponseCache = cache.NewLocalCache(options.CacheTTL, 10*time.Minute)
	}

	return &Invoker{
		connections: connections,
		httpClient:  httpClient,
		responses:   options.ResponseCache,
		limiter:     ratelimit.NewFixedWindow(options.RateLimit, options.RateWindow),
		slots:       make(chan struct{}, options.MaxConcurrent),
		options:     options,
		logger:      logger.WithFields(logging.String("component", "connector_invoker")),
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Invoke executes req against the integration identified by connectionID.
// Read-style calls (GET, GraphQL queries) are served from the response cache
// when fresh. Transient failures (429, 5xx, connection resets) are retried
// with the configured backoff; everything else fails fast.
func (inv *Invoker) Invoke(ctx context.Context, connectionID string, req Request) (*Response, error) {
	integration, err := inv.connections.Get(connectionID)
	if err != nil {
		return nil, err
	}
	if integration.Status != StatusActive && integration.Status != StatusTesting {
		return nil, errors.ConnectionError(fmt.Sprintf("integration is %s, not active", integration.Status), nil).
			WithContext("connection_id", connectionID)
	}

	if !inv.limiter.Allow(connectionID) {
		return nil, errors.RateLimitError("integration request budget exhausted").
			WithContext("connection_id", connectionID).
			WithContext("limit", inv.options.RateLimit)
	}

	cacheable := isCacheable(req)
	key := cacheKey(connectionID, req)
	if cacheable {
		if hit, ok := inv.responses.Get(ctx, key); ok {
			if cached, ok := hit.(*Response); ok {
				resp := *cached
				resp.FromCache = true
				return &resp, nil
			}
		}
	}

	select {
	case inv.slots <- struct{}{}:
		defer func() { <-inv.slots }()
	case <-ctx.Done():
		return nil, errors.TimeoutError("waiting for a request slot").WithContext("connection_id", connectionID)
	}

	breaker := inv.breakerFor(connectionID)

	start := time.Now()
	var resp *Response
	retryCfg := inv.options.Retry
	retryCfg.RetryableErrors = isTransient
	err = utils.RetryWithBackoff(ctx, retryCfg, func() error {
		result, execErr := breaker.Execute(func() (interface{}, error) {
			return inv.doRequest(ctx, req)
		})
		if execErr != nil {
			return execErr
		}
		resp = result.(*Response)
		return nil
	})

	latency := time.Since(start)
	inv.connections.recordRequest(connectionID, err == nil, latency)

	if err != nil {
		inv.logger.Warn("Integration request failed",
			logging.String("connection_id", connectionID),
			logging.String("url", req.URL),
			logging.Duration("latency", latency),
			logging.String("error", err.Error()),
		)
		return nil, err
	}

	if cacheable {
		stored := *resp
		ttl := req.CacheTTL
		if ttl <= 0 {
			ttl = inv.options.CacheTTL
		}
		inv.responses.Set(ctx, key, &stored, ttl)
	}

	inv.logger.Debug("Integration request completed",
		logging.String("connection_id", connectionID),
		logging.Int("status", resp.StatusCode),
		logging.Duration("latency", latency),
	)
	return resp, nil
}

func (inv *Invoker) breakerFor(connectionID string) *gobreaker.CircuitBreaker {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if breaker, ok := inv.breakers[connectionID]; ok {
		return breaker
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        connectionID,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	inv.breakers[connectionID] = breaker
	return breaker
}

func (inv *Invoker) doRequest(ctx context.Context, req Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	method := req.Method
	var payload interface{} = req.Body
	if req.GraphQL != "" {
		method = http.MethodPost
		body := map[string]interface{}{"query": req.GraphQL}
		if len(req.Variables) > 0 {
			body["variables"] = req.Variables
		}
		payload = body
	}
	if method == "" {
		method = http.MethodGet
	}

	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.ValidationError("cannot encode request body").WithContext("cause", err.Error())
		}
		reader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, reader)
	if err != nil {
		return nil, errors.ValidationError("invalid request").WithContext("cause", err.Error())
	}
	if reader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := inv.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.ConnectionError("request failed", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.ConnectionError("reading response failed", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
	}
	if httpResp.StatusCode >= 400 {
		return nil, &httpError{status: httpResp.StatusCode, response: resp}
	}
	return resp, nil
}

// httpError marks a non-2xx response; transient statuses are retried
type httpError struct {
	status   int
	response *Response
}

func (e *httpError) Error() string {
	return fmt.Sprintf("request returned status %d", e.status)
}

// isTransient implements the retry allow-list: HTTP 429, any 5xx, and
// connection-reset style transport errors. Everything else, including an open
// circuit breaker, fails fast.
func isTransient(err error) bool {
	if he, ok := err.(*httpError); ok {
		return he.status == http.StatusTooManyRequests || he.status >= 500
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "econnreset")
}

// isCacheable reports whether a request is a read: a GET, or a GraphQL
// document that is a query rather than a mutation
func isCacheable(req Request) bool {
	if req.GraphQL != "" {
		doc := strings.TrimSpace(strings.ToLower(req.GraphQL))
		return !strings.HasPrefix(doc, "mutation")
	}
	return req.Method == "" || strings.EqualFold(req.Method, http.MethodGet)
}

func cacheKey(connectionID string, req Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", connectionID, req.Method, req.URL, req.GraphQL)
	if req.Body != nil {
		if encoded, err := json.Marshal(req.Body); err == nil {
			h.Write(encoded)
		}
	}
	if len(req.Variables) > 0 {
		if encoded, err := json.Marshal(req.Variables); err == nil {
			h.Write(encoded)
		}
	}
	return "connector:" + hex.EncodeToString(h.Sum(nil))
}
