package domain

import "time"

// MarketSnapshot is the cache entry for one (event, bookmaker): the latest
// set of markets as last observed, plus timestamps bookkeeping when it was
// first captured and last confirmed unchanged. Immutable — a Put replaces
// it wholesale, never mutates it in place.
type MarketSnapshot struct {
	Event       ExternalMatchID
	Bookmaker   Bookmaker
	Markets     map[MarketIdentity]Market
	CapturedAt  time.Time // first observed
	ConfirmedAt time.Time // last observed unchanged
	Digest      string    // canonicalised content hash, for cheap equality checks
}

// SnapshotKey is the cache's lookup key.
type SnapshotKey struct {
	Event     ExternalMatchID
	Bookmaker Bookmaker
}
