package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/bhtools/podbulk/internal/config"
	"github.com/bhtools/podbulk/internal/constants"
)

// NewClient creates the HTTP client used for every call to the listing
// service, with proxy support from cfg.
//
//   - Proxy modes no-proxy, system, basic and ntlm (see ConfigureHTTPClient)
//   - HTTP/2 when talking directly to a TLS endpoint, disabled through
//     proxies and with PODBULK_DISABLE_HTTP2=true
//   - Overall request timeout from http.timeout; 0 leaves timeouts to
//     per-call contexts
func NewClient(cfg *config.Config) (*nethttp.Client, error) {
	client, err := ConfigureHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	client.Timeout = cfg.HTTP.Timeout

	tr, ok := client.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport in a negotiator; leave it alone.
		return client, nil
	}

	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv(constants.EnvPrefix+"DISABLE_HTTP2") == "true" || proxyActive(cfg) {
		// Proxies often mishandle h2 multiplexing.
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	client.Transport = tr
	return client, nil
}

func proxyActive(cfg *config.Config) bool {
	switch cfg.Proxy.Mode {
	case "no-proxy", "":
		return false
	case "system":
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return true
	}
}
