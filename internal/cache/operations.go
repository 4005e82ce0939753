package cache

import (
	"time"

	"github.com/lineform/scraper/internal/domain"
)

// Put compares newMarkets against the cached snapshot for (event,
// bookmaker), replaces it atomically, and returns the WriteBatch describing
// what changed; the market identities that became unavailable in this call
// are carried in the batch's Unavailable list.
func (c *Cache) Put(event domain.ExternalMatchID, bookmaker domain.Bookmaker, newMarkets []domain.MappedMarket, observedAt time.Time) domain.WriteBatch {
	observedAt = stripTZ(observedAt)
	next := canonicalize(newMarkets)

	c.mu.Lock()
	defer c.mu.Unlock()

	key := domain.SnapshotKey{Event: event, Bookmaker: bookmaker}
	prev, existed := c.snapshots[key]

	batch := domain.WriteBatch{Event: event, Bookmaker: bookmaker}

	prevMarkets := map[domain.MarketIdentity]domain.Market{}
	if existed {
		prevMarkets = prev.Markets
	}

	finalMarkets := make(map[domain.MarketIdentity]domain.Market, len(next.markets))

	for identity, newMarket := range next.markets {
		oldMarket, wasPresent := prevMarkets[identity]

		switch {
		case !wasPresent:
			batch.Inserts = append(batch.Inserts, domain.MarketInsert{
				Identity: identity, DisplayName: newMarket.DisplayName,
				Categories: newMarket.Categories, Outcomes: newMarket.Outcomes,
				Margin: newMarket.Margin, ObservedAt: observedAt,
			})
			finalMarkets[identity] = newMarket

		case oldMarket.UnavailableAt != nil:
			batch.Available = append(batch.Available, domain.MarketBecameAvailable{Identity: identity, ObservedAt: observedAt})
			if !sameCanonicalForm(oldMarket, newMarket) {
				batch.Updates = append(batch.Updates, domain.MarketUpdate{
					Identity: identity, DisplayName: newMarket.DisplayName,
					Categories: newMarket.Categories, Outcomes: newMarket.Outcomes,
					Margin: newMarket.Margin, ObservedAt: observedAt,
				})
			}
			finalMarkets[identity] = newMarket // UnavailableAt cleared

		case !sameCanonicalForm(oldMarket, newMarket):
			batch.Updates = append(batch.Updates, domain.MarketUpdate{
				Identity: identity, DisplayName: newMarket.DisplayName,
				Categories: newMarket.Categories, Outcomes: newMarket.Outcomes,
				Margin: newMarket.Margin, ObservedAt: observedAt,
			})
			finalMarkets[identity] = newMarket

		default:
			// Unchanged: newMarket has the same canonical form as the old
			// value and a nil UnavailableAt, so storing it loses nothing —
			// markets don't carry per-field timestamps, only the snapshot
			// does.
			finalMarkets[identity] = newMarket
		}
	}

	for identity, oldMarket := range prevMarkets {
		if _, stillPresent := next.markets[identity]; stillPresent {
			continue
		}
		if oldMarket.UnavailableAt == nil {
			batch.Unavailable = append(batch.Unavailable, domain.MarketUnavailable{Identity: identity, UnavailableAt: observedAt})
			oldMarket.UnavailableAt = &observedAt
		}
		finalMarkets[identity] = oldMarket
	}

	capturedAt := observedAt
	if existed {
		capturedAt = prev.CapturedAt
	}

	c.snapshots[key] = domain.MarketSnapshot{
		Event: event, Bookmaker: bookmaker, Markets: finalMarkets,
		CapturedAt: capturedAt, ConfirmedAt: observedAt, Digest: next.digest,
	}
	c.trackCoverage(event, bookmaker)

	return batch
}

// Confirm updates last_confirmed_at for an (event, bookmaker) snapshot
// that the coordinator determined produced an empty WriteBatch. It does
// not mutate the market set, but returns one MarketConfirmation per
// market still present in the snapshot, for the caller to route through
// the write pipeline as confirmation history points.
func (c *Cache) Confirm(event domain.ExternalMatchID, bookmaker domain.Bookmaker, observedAt time.Time) []domain.MarketConfirmation {
	observedAt = stripTZ(observedAt)
	c.mu.Lock()
	defer c.mu.Unlock()

	key := domain.SnapshotKey{Event: event, Bookmaker: bookmaker}
	snap, ok := c.snapshots[key]
	if !ok {
		return nil
	}
	snap.ConfirmedAt = observedAt
	c.snapshots[key] = snap

	confirmations := make([]domain.MarketConfirmation, 0, len(snap.Markets))
	for identity, m := range snap.Markets {
		confirmations = append(confirmations, domain.MarketConfirmation{
			Identity: identity, Margin: m.Margin, Outcomes: m.Outcomes,
			Available: m.IsAvailable(), ObservedAt: observedAt,
		})
	}
	return confirmations
}

// GetCurrent returns the snapshots currently cached for an event, one per
// bookmaker that has ever been observed for it.
func (c *Cache) GetCurrent(event domain.ExternalMatchID) map[domain.Bookmaker]domain.MarketSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[domain.Bookmaker]domain.MarketSnapshot)
	for _, b := range domain.AllBookmakers {
		if snap, ok := c.snapshots[domain.SnapshotKey{Event: event, Bookmaker: b}]; ok {
			out[b] = snap
		}
	}
	return out
}

// MarkUnavailable sets unavailable_at on every currently-available market
// in the (event, bookmaker) snapshot, used by the reconciliation pass when
// the event silently drops from a bookmaker's discovery list.
func (c *Cache) MarkUnavailable(event domain.ExternalMatchID, bookmaker domain.Bookmaker, observedAt time.Time) domain.WriteBatch {
	observedAt = stripTZ(observedAt)
	c.mu.Lock()
	defer c.mu.Unlock()

	key := domain.SnapshotKey{Event: event, Bookmaker: bookmaker}
	snap, ok := c.snapshots[key]
	if !ok {
		return domain.WriteBatch{Event: event, Bookmaker: bookmaker}
	}

	batch := domain.WriteBatch{Event: event, Bookmaker: bookmaker}
	updated := make(map[domain.MarketIdentity]domain.Market, len(snap.Markets))
	for identity, m := range snap.Markets {
		if m.UnavailableAt == nil {
			batch.Unavailable = append(batch.Unavailable, domain.MarketUnavailable{Identity: identity, UnavailableAt: observedAt})
			m.UnavailableAt = &observedAt
		}
		updated[identity] = m
	}
	snap.Markets = updated
	snap.ConfirmedAt = observedAt
	c.snapshots[key] = snap
	return batch
}

// MarkAvailable clears unavailable_at on a single market identity that has
// re-appeared, without touching its outcomes (a subsequent Put applies any
// content change).
func (c *Cache) MarkAvailable(event domain.ExternalMatchID, bookmaker domain.Bookmaker, identity domain.MarketIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := domain.SnapshotKey{Event: event, Bookmaker: bookmaker}
	snap, ok := c.snapshots[key]
	if !ok {
		return
	}
	m, ok := snap.Markets[identity]
	if !ok || m.UnavailableAt == nil {
		return
	}
	// Copy the market map so snapshots already handed out by GetCurrent
	// are never mutated in place.
	updated := make(map[domain.MarketIdentity]domain.Market, len(snap.Markets))
	for id, existing := range snap.Markets {
		updated[id] = existing
	}
	m.UnavailableAt = nil
	updated[identity] = m
	snap.Markets = updated
	c.snapshots[key] = snap
}

// EvictExpired drops every (event, bookmaker) entry whose event kickoff is
// more than one hour in the past. now and all stored kickoffs are
// compared in naive UTC, guarding against the aware/naive mismatch the
// spec flags as a known failure mode.
func (c *Cache) EvictExpired(now time.Time) []domain.ExternalMatchID {
	now = stripTZ(now)
	cutoff := now.Add(-time.Hour)

	c.mu.Lock()
	defer c.mu.Unlock()

	var evicted []domain.ExternalMatchID
	// An event is expired once its kickoff is more than one hour before
	// now, i.e. kickoff < now - 1h.
	for event, kickoff := range c.kickoffs {
		if !kickoff.Before(cutoff) {
			continue
		}
		for _, b := range domain.AllBookmakers {
			delete(c.snapshots, domain.SnapshotKey{Event: event, Bookmaker: b})
		}
		delete(c.kickoffs, event)
		delete(c.coverage, event)
		evicted = append(evicted, event)
	}
	return evicted
}

// CoverageFor returns the set of bookmakers currently known to offer an
// event, for the priority queue's coverage_value tiebreaker.
func (c *Cache) CoverageFor(event domain.ExternalMatchID) map[domain.Bookmaker]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[domain.Bookmaker]struct{}, len(c.coverage[event]))
	for b := range c.coverage[event] {
		out[b] = struct{}{}
	}
	return out
}

// trackCoverage must be called with c.mu already held for writing.
func (c *Cache) trackCoverage(event domain.ExternalMatchID, bookmaker domain.Bookmaker) {
	if c.coverage[event] == nil {
		c.coverage[event] = make(map[domain.Bookmaker]struct{})
	}
	c.coverage[event][bookmaker] = struct{}{}
}
