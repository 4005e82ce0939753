// Package cache holds the in-RAM odds cache: the per-(event, bookmaker)
// MarketSnapshot state, change detection at market granularity, and
// availability-transition bookkeeping. It never performs I/O — mutations
// take a short coarse lock and return, leaving durability to the write
// pipeline the coordinator hands the resulting WriteBatch to.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lineform/scraper/internal/domain"
)

// Cache is the shared odds cache. Safe for concurrent use.
type Cache struct {
	mu        sync.RWMutex
	snapshots map[domain.SnapshotKey]domain.MarketSnapshot
	kickoffs  map[domain.ExternalMatchID]time.Time
	coverage  map[domain.ExternalMatchID]map[domain.Bookmaker]struct{}
}

// New constructs an empty cache.
func New() *Cache {
	return &Cache{
		snapshots: make(map[domain.SnapshotKey]domain.MarketSnapshot),
		kickoffs:  make(map[domain.ExternalMatchID]time.Time),
		coverage:  make(map[domain.ExternalMatchID]map[domain.Bookmaker]struct{}),
	}
}

// SetKickoff records (or updates) the kickoff time used by EvictExpired.
// Kickoff is always normalised to naive UTC here, at the one place
// upstream timestamps enter the cache — this is the boundary the spec
// calls out as the known naive/aware timezone defect class.
func (c *Cache) SetKickoff(event domain.ExternalMatchID, kickoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kickoffs[event] = stripTZ(kickoff)
}

// stripTZ normalises a timestamp to naive UTC: convert to UTC, then
// construct a new value with no monotonic reading and no location
// ambiguity, so downstream comparisons are never fooled by a value that
// carries a non-UTC *time.Location even though the wall-clock happens to
// already be UTC.
func stripTZ(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), u.Minute(), u.Second(), u.Nanosecond(), time.UTC)
}

// canonForm is the canonicalised representation of a market set used for
// change detection: markets sorted by identity, each market's outcomes
// sorted by canonical name, odds rounded to 4 decimals.
type canonForm struct {
	markets map[domain.MarketIdentity]domain.Market
	digest  string
}

func canonicalize(mapped []domain.MappedMarket) canonForm {
	markets := make(map[domain.MarketIdentity]domain.Market, len(mapped))
	identities := make([]domain.MarketIdentity, 0, len(mapped))

	for _, m := range mapped {
		outcomes := make([]domain.Outcome, len(m.Outcomes))
		copy(outcomes, m.Outcomes)
		sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Name < outcomes[j].Name })
		for i := range outcomes {
			outcomes[i].Odds = round4(outcomes[i].Odds)
		}

		identity := m.Identity()
		markets[identity] = domain.Market{
			Identity:    identity,
			DisplayName: m.DisplayName,
			Categories:  m.Categories,
			Outcomes:    outcomes,
			Margin:      m.Margin,
		}
		identities = append(identities, identity)
	}

	sort.Slice(identities, func(i, j int) bool {
		a, b := identities[i], identities[j]
		if a.CanonicalMarketID != b.CanonicalMarketID {
			return a.CanonicalMarketID < b.CanonicalMarketID
		}
		return a.LineKey < b.LineKey
	})

	return canonForm{markets: markets, digest: digestOf(markets, identities)}
}

func round4(v float64) float64 {
	const scale = 10000
	return float64(int64(v*scale+0.5)) / scale
}

func digestOf(markets map[domain.MarketIdentity]domain.Market, ordered []domain.MarketIdentity) string {
	h := sha256.New()
	for _, id := range ordered {
		m := markets[id]
		fmt.Fprintf(h, "%s|%g|%.2f|", id.CanonicalMarketID, id.LineKey, m.Margin)
		for _, o := range m.Outcomes {
			fmt.Fprintf(h, "%s=%.4f(%v);", o.Name, o.Odds, o.Active)
		}
		h.Write([]byte("\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// sameCanonicalForm reports whether two markets are identical once
// canonicalised — the equality check change detection uses to decide
// between MarketUpdate and a silent confirmation.
func sameCanonicalForm(a, b domain.Market) bool {
	if a.DisplayName != b.DisplayName || len(a.Outcomes) != len(b.Outcomes) {
		return false
	}
	for i := range a.Outcomes {
		if a.Outcomes[i] != b.Outcomes[i] {
			return false
		}
	}
	return true
}
