// Package ratelimit enforces minimum spacing between outbound requests
// to each upstream provider.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter blocks until a request to the named provider may be sent.
type Limiter interface {
	Wait(ctx context.Context, provider string) error
}

// Spacing holds one limiter per provider name. Providers without an explicit
// spacing use the default.
type Spacing struct {
	defaultSpacing time.Duration

	mu       sync.Mutex
	spacing  map[string]time.Duration
	limiters map[string]*rate.Limiter
}

// NewSpacing creates a limiter set. perProvider overrides defaultSpacing by name.
func NewSpacing(defaultSpacing time.Duration, perProvider map[string]time.Duration) *Spacing {
	s := &Spacing{
		defaultSpacing: defaultSpacing,
		spacing:        make(map[string]time.Duration, len(perProvider)),
		limiters:       make(map[string]*rate.Limiter),
	}
	for name, d := range perProvider {
		s.spacing[name] = d
	}
	return s
}

// Wait blocks until the provider's minimum inter-request spacing has elapsed
// or ctx is done.
func (s *Spacing) Wait(ctx context.Context, provider string) error {
	return s.limiter(provider).Wait(ctx)
}

// Spacing returns the configured spacing for provider.
func (s *Spacing) Spacing(provider string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spacingLocked(provider)
}

func (s *Spacing) spacingLocked(provider string) time.Duration {
	if d, ok := s.spacing[provider]; ok {
		return d
	}
	return s.defaultSpacing
}

func (s *Spacing) limiter(provider string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.limiters[provider]; ok {
		return l
	}

	limit := rate.Inf
	if d := s.spacingLocked(provider); d > 0 {
		limit = rate.Every(d)
	}
	l := rate.NewLimiter(limit, 1)
	s.limiters[provider] = l
	return l
}
