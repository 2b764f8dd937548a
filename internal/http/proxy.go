package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"

	ntlmssp "github.com/Azure/go-ntlmssp"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http/httpproxy"

	"github.com/bhtools/podbulk/internal/config"
	"github.com/bhtools/podbulk/internal/constants"
)

type proxyFunc func(*nethttp.Request) (*url.URL, error)

// ConfigureHTTPClient builds a client that reaches the listing service
// through the proxy described by cfg.Proxy.
func ConfigureHTTPClient(cfg *config.Config) (*nethttp.Client, error) {
	p := cfg.Proxy
	mode := strings.ToLower(p.Mode)

	proxy, err := proxyFor(mode, p)
	if err != nil {
		return nil, err
	}

	transport := newTransport()
	transport.Proxy = proxy

	client := &nethttp.Client{Transport: transport}
	if mode == "ntlm" && proxy != nil {
		client.Transport = ntlmssp.Negotiator{RoundTripper: transport}
	}

	if shouldWarmup(mode, p, proxy != nil) {
		if err := warmupProxy(client, cfg.APIURL); err != nil {
			return nil, fmt.Errorf("proxy warmup failed: %w", err)
		}
	}
	return client, nil
}

func newTransport() *nethttp.Transport {
	return &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:          8,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}
}

// proxyFor picks the transport proxy function for a mode. A nil function
// means direct connections.
func proxyFor(mode string, p config.ProxyConfig) (proxyFunc, error) {
	switch mode {
	case "", "no-proxy":
		return nil, nil
	case "system":
		return nethttp.ProxyFromEnvironment, nil
	case "basic", "ntlm":
		// A half-written config must not lock the user out of 'config init'.
		if p.Host == "" {
			log.Warn().Str("mode", mode).Msg("proxy host is missing, connecting directly")
			return nil, nil
		}
		if p.User != "" && p.Password == "" {
			log.Warn().Str("user", p.User).Msg("proxy password missing, proxy auth disabled")
		}
		return proxyFuncWithBypass(buildProxyURL(p), p.NoProxy), nil
	default:
		return nil, fmt.Errorf("unsupported proxy mode: %s", p.Mode)
	}
}

func shouldWarmup(mode string, p config.ProxyConfig, proxied bool) bool {
	if !p.Warmup || !proxied {
		return false
	}
	if mode == "system" {
		return true
	}
	return p.User != "" && p.Password != ""
}

// buildProxyURL returns http://[user:password@]host:port. Credentials are
// only embedded when both are set.
func buildProxyURL(p config.ProxyConfig) *url.URL {
	port := p.Port
	if port == 0 {
		port = constants.DefaultProxyPort
	}
	u := &url.URL{Scheme: "http", Host: net.JoinHostPort(p.Host, strconv.Itoa(port))}
	if p.User != "" && p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	}
	return u
}

// warmupProxy sends one GET to the service root so the proxy handshake
// happens before the first real call.
func warmupProxy(client *nethttp.Client, baseURL string) error {
	if baseURL == "" {
		baseURL = constants.DefaultBaseURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.ProxyWarmupTimeout)
	defer cancel()

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, strings.TrimRight(baseURL, "/")+"/", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("service answered %d", resp.StatusCode)
	}
	return nil
}

// proxyFuncWithBypass routes every request through proxyURL except hosts
// matched by the comma-separated noProxy list (hosts, domains, CIDRs).
func proxyFuncWithBypass(proxyURL *url.URL, noProxy string) proxyFunc {
	if noProxy == "" {
		return nethttp.ProxyURL(proxyURL)
	}
	match := (&httpproxy.Config{
		HTTPProxy:  proxyURL.String(),
		HTTPSProxy: proxyURL.String(),
		NoProxy:    noProxy,
	}).ProxyFunc()
	return func(req *nethttp.Request) (*url.URL, error) {
		u, err := match(req.URL)
		if u == nil {
			log.Debug().Str("host", req.URL.Host).Msg("no-proxy match, connecting directly")
		}
		return u, err
	}
}

// NeedsProxyPassword reports whether an authenticating proxy has a user
// but no password, so the CLI should prompt for one.
func NeedsProxyPassword(cfg *config.Config) bool {
	switch strings.ToLower(cfg.Proxy.Mode) {
	case "basic", "ntlm":
		return cfg.Proxy.User != "" && cfg.Proxy.Password == ""
	default:
		return false
	}
}
