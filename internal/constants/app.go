package constants

import (
	"time"
)

// Application identity
const (
	// AppName is used for the binary name, config directory and env prefix.
	AppName = "podbulk"

	// EnvPrefix prefixes every environment variable read by the config layer.
	EnvPrefix = "PODBULK_"

	// DefaultBaseURL is the address of a locally running bulk uploader service.
	DefaultBaseURL = "http://127.0.0.1:5000"
)

// Job polling
const (
	// PollInterval - fixed interval between progress queries while a job runs (1 second)
	// No backoff is applied; the loop runs until a terminal status is observed.
	PollInterval = 1 * time.Second

	// PollRequestTimeout - per-request timeout for a single progress query (10 seconds)
	// A query that times out counts as a poll transport failure.
	PollRequestTimeout = 10 * time.Second
)

// Poll failure policies
const (
	// PollFailureContinue treats a failed progress query as transient.
	PollFailureContinue = "continue"

	// PollFailureTerminate ends polling with an error status on the first failed query.
	PollFailureTerminate = "terminate"
)

// HTTP transport
const (
	// HTTPDialTimeout - TCP connect timeout
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - TCP keep-alive period
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPIdleConnTimeout - how long idle connections stay in the pool
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - TLS handshake timeout
	HTTPTLSHandshakeTimeout = 15 * time.Second

	// HTTPExpectContinueTimeout - wait for 100-continue on large multipart uploads
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPClientTimeout - overall timeout for a single API call (uploads excluded)
	HTTPClientTimeout = 120 * time.Second

	// ProxyWarmupTimeout - timeout for the optional proxy warmup request
	ProxyWarmupTimeout = 15 * time.Second

	// DefaultProxyPort is used when proxy.port is unset
	DefaultProxyPort = 8080
)

// Client-side request limiting
const (
	// DefaultRequestsPerSecond - sustained request rate toward the service.
	// The 1 Hz poll loop plus interactive calls stay well below it.
	DefaultRequestsPerSecond = 10.0

	// DefaultRequestBurst - burst capacity of the request limiter
	DefaultRequestBurst = 20
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels
	EventBusDefaultBuffer = 256

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios
	EventBusMaxBuffer = 4096
)

// UI Updates
const (
	// ProgressUpdateInterval - refresh interval for the upload bars (250ms)
	ProgressUpdateInterval = 250 * time.Millisecond
)

// AllowedImageExtensions mirrors the service's upload allow-list.
var AllowedImageExtensions = []string{"png", "jpg", "jpeg", "gif"}
