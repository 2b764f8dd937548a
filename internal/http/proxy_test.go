package http

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/bhtools/podbulk/internal/config"
)

func TestProxyFuncWithBypass(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")

	tests := []struct {
		name       string
		noProxy    string
		url        string
		wantBypass bool
	}{
		{"empty list proxies everything", "", "https://listings.example.com/api/stores", false},
		{"wildcard subdomain", "*.example.com", "https://listings.example.com/api/stores", true},
		{"bare domain matches root", "example.com", "https://example.com/api/stores", true},
		{"bare domain matches subdomain", "example.com", "https://api.example.com/api/stores", true},
		{"cidr", "10.0.0.0/8", "http://10.1.2.3:5000/api/progress", true},
		{"non-matching host", "*.internal.corp,10.0.0.0/8", "https://shop.example.net/api/stores", false},
		{"list with spaces", "*.example.com, 192.168.0.0/16, internal.corp", "https://internal.corp/api/progress", true},
		{"list with spaces cidr", "*.example.com, 192.168.0.0/16, internal.corp", "http://192.168.1.100/api/upload", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proxyFunc := proxyFuncWithBypass(proxyURL, tt.noProxy)
			req, _ := http.NewRequest("GET", tt.url, nil)
			result, err := proxyFunc(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantBypass && result != nil {
				t.Errorf("expected bypass (nil) for %s, got %v", tt.url, result)
			}
			if !tt.wantBypass {
				if result == nil {
					t.Fatalf("expected proxy for %s, got nil (bypass)", tt.url)
				}
				if result.Host != "proxy.corp:8080" {
					t.Errorf("proxy host = %s, want proxy.corp:8080", result.Host)
				}
			}
		})
	}
}

func TestBuildProxyURL(t *testing.T) {
	u := buildProxyURL(config.ProxyConfig{Host: "proxy.corp", User: "alice"})
	if u.Host != "proxy.corp:8080" {
		t.Errorf("Host = %s, want proxy.corp:8080", u.Host)
	}
	if u.User != nil {
		t.Errorf("User = %v, want nil without a password", u.User)
	}

	u = buildProxyURL(config.ProxyConfig{Host: "proxy.corp", Port: 3128, User: "alice", Password: "pw"})
	if u.String() != "http://alice:pw@proxy.corp:3128" {
		t.Errorf("URL = %s", u.String())
	}
}

func TestConfigureHTTPClient(t *testing.T) {
	cfg := config.Default()

	cfg.Proxy.Mode = "ntlm"
	client, err := ConfigureHTTPClient(cfg)
	if err != nil {
		t.Fatalf("ntlm without host: %v", err)
	}
	if tr, ok := client.Transport.(*http.Transport); !ok || tr.Proxy != nil {
		t.Errorf("ntlm without host should fall back to a direct transport")
	}

	cfg.Proxy.Host = "proxy.corp"
	client, err = ConfigureHTTPClient(cfg)
	if err != nil {
		t.Fatalf("ntlm: %v", err)
	}
	if _, ok := client.Transport.(*http.Transport); ok {
		t.Errorf("ntlm transport should be wrapped in a negotiator")
	}

	cfg.Proxy.Mode = "socks"
	if _, err := ConfigureHTTPClient(cfg); err == nil {
		t.Error("expected error for unsupported proxy mode")
	}
}

func TestNewClientDisablesHTTP2ThroughProxy(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Timeout = 5 * time.Second

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.Timeout)
	}
	if tr := client.Transport.(*http.Transport); !tr.ForceAttemptHTTP2 {
		t.Error("expected h2 for a direct connection")
	}

	cfg.Proxy.Mode = "basic"
	cfg.Proxy.Host = "proxy.corp"
	client, err = NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if tr := client.Transport.(*http.Transport); tr.ForceAttemptHTTP2 {
		t.Error("expected h2 disabled through a proxy")
	}
}

func TestNeedsProxyPassword(t *testing.T) {
	cfg := config.Default()
	cfg.Proxy.Mode = "basic"
	cfg.Proxy.User = "alice"
	if !NeedsProxyPassword(cfg) {
		t.Error("expected prompt for basic proxy without password")
	}
	cfg.Proxy.Password = "pw"
	if NeedsProxyPassword(cfg) {
		t.Error("no prompt once password is set")
	}
	cfg.Proxy.Mode = "system"
	cfg.Proxy.Password = ""
	if NeedsProxyPassword(cfg) {
		t.Error("system mode never prompts")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorType
	}{
		{nil, ErrorTypeSuccess},
		{fmt.Errorf("wrapped: %w", timeoutErr{}), ErrorTypeNetwork},
		{&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, ErrorTypeNetwork},
		{errors.New("unexpected EOF"), ErrorTypeNetwork},
		{errors.New("malformed response"), ErrorTypeFatal},
	}
	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.want {
			t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := map[int]ErrorType{
		200: ErrorTypeSuccess,
		400: ErrorTypeFatal,
		401: ErrorTypeCredential,
		403: ErrorTypeCredential,
		404: ErrorTypeFatal,
		429: ErrorTypeRetryable,
		503: ErrorTypeRetryable,
	}
	for status, want := range tests {
		if got := ClassifyStatus(status); got != want {
			t.Errorf("ClassifyStatus(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestErrorTypeString(t *testing.T) {
	if got := ErrorTypeNetwork.String(); got != "network" {
		t.Errorf("String() = %q, want network", got)
	}
	if got := ErrorType(42).String(); got != "unknown" {
		t.Errorf("String() = %q, want unknown", got)
	}
}

func TestCalculateBackoff(t *testing.T) {
	if got := CalculateBackoff(0, time.Second, time.Minute); got != 0 {
		t.Errorf("attempt 0 backoff = %v, want 0", got)
	}
	for i := 0; i < 20; i++ {
		if got := CalculateBackoff(3, 100*time.Millisecond, 500*time.Millisecond); got < 0 || got >= 500*time.Millisecond {
			t.Errorf("backoff %v out of range", got)
		}
	}
	if got := CalculateBackoff(2, time.Second, 0); got != 0 {
		t.Errorf("zero max backoff = %v, want 0", got)
	}
}
