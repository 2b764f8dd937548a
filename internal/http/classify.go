package http

import (
	"context"
	"errors"
	"math/rand"
	"net"
	nethttp "net/http"
	"strings"
	"syscall"
	"time"

	"github.com/samber/lo"
)

// ErrorType is the failure class of one request.
type ErrorType int

const (
	ErrorTypeSuccess    ErrorType = iota
	ErrorTypeCredential           // 401, 403
	ErrorTypeNetwork              // timeouts, refused or reset connections, DNS
	ErrorTypeRetryable            // 429, 5xx
	ErrorTypeFatal                // other 4xx and anything unrecognized
	ErrorTypeCanceled             // the caller's context ended
)

var errorTypeNames = [...]string{"success", "credential", "network", "retryable", "fatal", "canceled"}

func (t ErrorType) String() string {
	if t < 0 || int(t) >= len(errorTypeNames) {
		return "unknown"
	}
	return errorTypeNames[t]
}

var (
	networkErrnos = []error{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE}

	// Wrapped transport errors sometimes lose their type; match the text.
	networkPhrases = []string{"tls handshake timeout", "connection reset", "connection refused", "broken pipe", "eof"}
)

// ClassifyError returns the class of a transport error. Only
// ErrorTypeNetwork failures are worth retrying.
func ClassifyError(err error) ErrorType {
	switch {
	case err == nil:
		return ErrorTypeSuccess
	case errors.Is(err, context.Canceled):
		return ErrorTypeCanceled
	case isNetworkError(err):
		return ErrorTypeNetwork
	default:
		return ErrorTypeFatal
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if lo.ContainsBy(networkErrnos, func(target error) bool { return errors.Is(err, target) }) {
		return true
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return lo.ContainsBy(networkPhrases, func(p string) bool { return strings.Contains(msg, p) })
}

// ClassifyStatus returns the class of an HTTP response status.
func ClassifyStatus(status int) ErrorType {
	switch {
	case status < 400:
		return ErrorTypeSuccess
	case status == nethttp.StatusUnauthorized, status == nethttp.StatusForbidden:
		return ErrorTypeCredential
	case status == nethttp.StatusTooManyRequests, status >= 500:
		return ErrorTypeRetryable
	default:
		return ErrorTypeFatal
	}
}

// CalculateBackoff returns a full-jitter delay in
// [0, min(maxDelay, initialDelay*2^attempt)).
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}
	ceiling := initialDelay << uint(attempt)
	if ceiling <= 0 || ceiling > maxDelay {
		ceiling = maxDelay
	}
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceiling)))
}
