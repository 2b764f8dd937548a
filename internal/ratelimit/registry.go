package ratelimit

import (
	"context"
	"strings"
)

// Scope groups endpoints that share one request budget.
type Scope string

const (
	// ScopeDefault covers listing, upload, polling and control endpoints.
	ScopeDefault Scope = "default"

	// ScopeAI covers endpoints that make the service call a paid AI
	// provider (credential probes through generate_title).
	ScopeAI Scope = "ai"
)

// aiRatePerSecond keeps repeated provider probes from burning quota.
const (
	aiRatePerSecond = 1.0
	aiBurst         = 2
)

// rule maps a path prefix to a scope.
type rule struct {
	prefix string
	scope  Scope
}

var rules = []rule{
	{prefix: "/api/generate_title", scope: ScopeAI},
}

// ScopeFor returns the scope of a request path.
func ScopeFor(path string) Scope {
	for _, r := range rules {
		if strings.HasPrefix(path, r.prefix) {
			return r.scope
		}
	}
	return ScopeDefault
}

// Registry holds one limiter per scope.
type Registry struct {
	limiters map[Scope]*RateLimiter
}

// NewRegistry creates limiters for every scope. ratePerSecond and burst
// configure the default scope; ratePerSecond <= 0 disables limiting for
// all scopes.
func NewRegistry(ratePerSecond float64, burst int) *Registry {
	reg := &Registry{limiters: make(map[Scope]*RateLimiter)}
	reg.limiters[ScopeDefault] = NewRateLimiter(string(ScopeDefault), ratePerSecond, burst)
	if ratePerSecond <= 0 {
		reg.limiters[ScopeAI] = NewRateLimiter(string(ScopeAI), 0, 1)
	} else {
		reg.limiters[ScopeAI] = NewRateLimiter(string(ScopeAI), aiRatePerSecond, aiBurst)
	}
	return reg
}

// Limiter returns the limiter of a scope.
func (r *Registry) Limiter(scope Scope) *RateLimiter {
	if r == nil {
		return nil
	}
	return r.limiters[scope]
}

// Wait blocks until the scope of path has capacity.
func (r *Registry) Wait(ctx context.Context, path string) error {
	return r.Limiter(ScopeFor(path)).Wait(ctx)
}
