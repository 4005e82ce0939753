// Package fetcher defines the opaque per-bookmaker HTTP client contract
// the coordinator fans out over, grounded on the teacher's rate-limited
// retrying HTTP helper but generalised to three named bookmakers instead
// of one connector per external data vendor.
package fetcher

import (
	"context"

	"github.com/lineform/scraper/internal/domain"
)

// Fetcher is the polymorphic capability one bookmaker connector
// implements. The core depends on nothing about how a bookmaker's API is
// shaped beyond these two calls and the bookmaker carrying the external
// match id in a known location.
type Fetcher interface {
	Bookmaker() domain.Bookmaker
	Discover(ctx context.Context) ([]domain.DiscoveredEvent, error)
	FetchEvent(ctx context.Context, externalID domain.ExternalMatchID) (domain.RawEventDocument, error)
}

// Registry resolves a Fetcher by bookmaker for the coordinator's fan-out.
type Registry struct {
	fetchers map[domain.Bookmaker]Fetcher
}

// NewRegistry builds a registry from a set of fetchers, one per bookmaker.
func NewRegistry(fetchers ...Fetcher) *Registry {
	r := &Registry{fetchers: make(map[domain.Bookmaker]Fetcher, len(fetchers))}
	for _, f := range fetchers {
		r.fetchers[f.Bookmaker()] = f
	}
	return r
}

// For returns the fetcher registered for b, or nil if none is registered.
func (r *Registry) For(b domain.Bookmaker) Fetcher {
	return r.fetchers[b]
}

// All returns every registered fetcher, in no particular order.
func (r *Registry) All() []Fetcher {
	out := make([]Fetcher, 0, len(r.fetchers))
	for _, f := range r.fetchers {
		out = append(out, f)
	}
	return out
}
