// Package identity supplies the user-agent and proxy pools used for outbound fetches.
package identity

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jonesrussell/north-cloud/pricetracker/internal/fetcher"
)

// Source returns the current identity pools. Implementations may reload
// their lists between calls; callers take one Snapshot per job run.
type Source interface {
	UserAgents(ctx context.Context) ([]string, error)
	Proxies(ctx context.Context) ([]string, error)
}

// Static is a Source backed by fixed lists, typically from configuration.
type Static struct {
	mu         sync.RWMutex
	userAgents []string
	proxies    []string
}

var _ Source = (*Static)(nil)

// NewStatic creates a Static source. Blank entries are dropped.
func NewStatic(userAgents, proxies []string) *Static {
	s := &Static{}
	s.Set(userAgents, proxies)
	return s
}

// Set replaces both pools.
func (s *Static) Set(userAgents, proxies []string) {
	ua := clean(userAgents)
	px := clean(proxies)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.userAgents = ua
	s.proxies = px
}

// UserAgents returns a copy of the user-agent pool.
func (s *Static) UserAgents(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.userAgents), nil
}

// Proxies returns a copy of the proxy pool.
func (s *Static) Proxies(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.proxies), nil
}

// Snapshot reads both pools from src once and returns fetch options that stay
// fixed for the rest of the run.
func Snapshot(ctx context.Context, src Source) (fetcher.Options, error) {
	if src == nil {
		return fetcher.Options{}, nil
	}

	userAgents, err := src.UserAgents(ctx)
	if err != nil {
		return fetcher.Options{}, fmt.Errorf("load user agents: %w", err)
	}
	proxies, err := src.Proxies(ctx)
	if err != nil {
		return fetcher.Options{}, fmt.Errorf("load proxies: %w", err)
	}

	return fetcher.Options{
		UserAgents: slices.Clone(userAgents),
		Proxies:    slices.Clone(proxies),
	}, nil
}

func clean(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
