package api

import (
	"errors"
	"net/url"

	"github.com/bhtools/podbulk/internal/http"
)

// Sentinels matched by errors.Is on the typed errors below.
var (
	// ErrTransport matches any *TransportError.
	ErrTransport = errors.New("transport failure")

	// ErrRemote matches any *RemoteError.
	ErrRemote = errors.New("rejected by service")
)

// RemoteError is an application-level rejection: the service answered,
// and either set an "error" field or returned a failure status.
// Error() is the service's message verbatim so it can be shown as is.
type RemoteError struct {
	Op      string
	Status  int
	Message string
}

func (e *RemoteError) Error() string { return e.Message }

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// TransportError is a failure to get a usable answer: connection errors,
// timeouts, unreadable or undecodable bodies.
// Error() is the underlying error text.
type TransportError struct {
	Op   string
	Kind http.ErrorType
	Err  error
}

func (e *TransportError) Error() string { return e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsRemote reports whether err is a rejection by the service.
func IsRemote(err error) bool {
	return errors.Is(err, ErrRemote)
}

// IsCanceled reports whether err came from the caller's context ending.
func IsCanceled(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == http.ErrorTypeCanceled
}

// Message returns the human-readable text for a status line.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}

// unwrapURLError drops the "Get \"http://...\":" prefix net/http adds so
// status lines show only the cause.
func unwrapURLError(err error) error {
	for {
		var ue *url.Error
		if !errors.As(err, &ue) || ue.Err == nil {
			return err
		}
		err = ue.Err
	}
}
