// Package api is the HTTP client for the bulk listing service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/bhtools/podbulk/internal/config"
	"github.com/bhtools/podbulk/internal/http"
	"github.com/bhtools/podbulk/internal/logging"
	"github.com/bhtools/podbulk/internal/ratelimit"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, not all info
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

// apiMetrics tracks API usage statistics
type apiMetrics struct {
	sync.Mutex
	totalCalls  int64
	callsByPath map[string]int64
}

// Client talks to the listing service. It is safe for concurrent use.
type Client struct {
	httpClient *nethttp.Client // retrying client for JSON calls
	rawClient  *nethttp.Client // streaming uploads, never retried
	baseURL    string
	limits     *ratelimit.Registry
	log        *logging.Logger
	metrics    *apiMetrics
}

// NewClient creates a new API client
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, fmt.Errorf("API base URL is empty")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.Component("api")

	httpClient, err := http.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = httpClient
	retryClient.RetryMax = cfg.HTTP.MaxRetries
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.CheckRetry = checkRetry
	retryClient.Backoff = backoff
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = &retryLogger{log: logger}

	return &Client{
		httpClient: retryClient.StandardClient(),
		rawClient:  httpClient,
		baseURL:    strings.TrimSuffix(cfg.APIURL, "/"),
		limits:     ratelimit.NewRegistry(cfg.HTTP.RequestsPerSecond, cfg.HTTP.Burst),
		log:        logger,
		metrics:    &apiMetrics{callsByPath: make(map[string]int64)},
	}, nil
}

// checkRetry retries network failures and 429/5xx, never a cancelled call.
func checkRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return http.ClassifyError(err) == http.ErrorTypeNetwork, nil
	}
	return http.ClassifyStatus(resp.StatusCode) == http.ErrorTypeRetryable, nil
}

func backoff(min, max time.Duration, attemptNum int, _ *nethttp.Response) time.Duration {
	return http.CalculateBackoff(attemptNum, min, max)
}

// BaseURL returns the service base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// CallCounts returns the number of requests issued per path.
func (c *Client) CallCounts() map[string]int64 {
	c.metrics.Lock()
	defer c.metrics.Unlock()
	out := make(map[string]int64, len(c.metrics.callsByPath))
	for k, v := range c.metrics.callsByPath {
		out[k] = v
	}
	return out
}

// LogUsage writes per-path call counts at debug level.
func (c *Client) LogUsage() {
	counts := c.CallCounts()
	paths := make([]string, 0, len(counts))
	for p := range counts {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		c.log.Debug().Str("path", p).Int64("calls", counts[p]).Msg("api usage")
	}
}

func (c *Client) track(path string) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	c.metrics.Lock()
	c.metrics.totalCalls++
	c.metrics.callsByPath[path]++
	c.metrics.Unlock()
}

// newRequest builds a request with the common headers. bearer is sent as
// "Authorization: Bearer <key>" when non-empty.
func (c *Client) newRequest(ctx context.Context, method, path, bearer string, body io.Reader) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req, nil
}

// doRequest performs a JSON request with rate limiting.
func (c *Client) doRequest(ctx context.Context, op, method, path, bearer string, body interface{}) (*nethttp.Response, error) {
	if err := c.limits.Wait(ctx, path); err != nil {
		return nil, &TransportError{Op: op, Kind: http.ClassifyError(err), Err: fmt.Errorf("rate limiter cancelled: %w", err)}
	}
	c.track(path)

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := c.newRequest(ctx, method, path, bearer, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := http.ClassifyError(err)
		c.log.Debug().Str("op", op).Str("path", path).Str("class", kind.String()).Err(err).Msg("request failed")
		return nil, &TransportError{Op: op, Kind: kind, Err: unwrapURLError(err)}
	}

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		c.log.Warn().Str("path", path).Str("retry_after", resp.Header.Get("Retry-After")).Msg("throttled by service")
	}

	return resp, nil
}

// call performs a JSON request and decodes a successful body into out.
func (c *Client) call(ctx context.Context, op, method, path, bearer string, body, out interface{}) error {
	resp, err := c.doRequest(ctx, op, method, path, bearer, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeResponse(op, resp, out)
}

// decodeResponse turns a response into out or a typed error. A JSON object
// carrying a non-empty "error" field is a rejection whatever the status.
func decodeResponse(op string, resp *nethttp.Response, out interface{}) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, Kind: http.ClassifyError(err), Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if msg, ok := errorField(data); ok {
		return &RemoteError{Op: op, Status: resp.StatusCode, Message: msg}
	}
	if resp.StatusCode >= 400 {
		return &RemoteError{
			Op:      op,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("%s failed: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: op, Kind: http.ErrorTypeFatal, Err: fmt.Errorf("failed to decode %s response: %w", op, err)}
	}
	return nil
}

func errorField(data []byte) (string, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}
	var body struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &body); err != nil || body.Error == nil || *body.Error == "" {
		return "", false
	}
	return *body.Error, true
}
