package domain

import "time"

// MarketInsert is emitted the first time a market identity is observed
// for a given (event, bookmaker).
type MarketInsert struct {
	Identity    MarketIdentity
	DisplayName string
	Categories  map[Category]struct{}
	Outcomes    []Outcome
	Margin      float64
	ObservedAt  time.Time
}

// MarketUpdate is emitted when a previously-seen market's canonical form
// (outcomes or odds) has changed.
type MarketUpdate struct {
	Identity    MarketIdentity
	DisplayName string
	Categories  map[Category]struct{}
	Outcomes    []Outcome
	Margin      float64
	ObservedAt  time.Time
}

// MarketUnavailable is emitted when a market that was previously offered
// has disappeared from the latest observation.
type MarketUnavailable struct {
	Identity      MarketIdentity
	UnavailableAt time.Time
}

// MarketBecameAvailable is emitted when a market that was marked
// unavailable (or entirely absent) re-appears.
type MarketBecameAvailable struct {
	Identity   MarketIdentity
	ObservedAt time.Time
}

// MarketConfirmation is emitted for every market still present in a
// snapshot when a cycle's observation produced no change at all — it
// verifies the market's canonical form is unchanged rather than recording
// a new one.
type MarketConfirmation struct {
	Identity   MarketIdentity
	Margin     float64
	Outcomes   []Outcome
	Available  bool
	ObservedAt time.Time
}

// WriteBatch is what the cache emits from one Put/MarkUnavailable/Confirm
// call: the ordered set of changes (or confirmations) for one (event,
// bookmaker, cycle). All of it commits atomically in the write pipeline,
// or none of it does.
type WriteBatch struct {
	Event         ExternalMatchID
	Bookmaker     Bookmaker
	Inserts       []MarketInsert
	Updates       []MarketUpdate
	Unavailable   []MarketUnavailable
	Available     []MarketBecameAvailable
	Confirmations []MarketConfirmation
}

// Empty reports whether the batch carries no changes and no confirmations
// at all — the write pipeline skips enqueuing an empty batch entirely.
func (b WriteBatch) Empty() bool {
	return len(b.Inserts) == 0 && len(b.Updates) == 0 && len(b.Unavailable) == 0 &&
		len(b.Available) == 0 && len(b.Confirmations) == 0
}

// Counts summarises a batch for observability (scrape_progress payloads,
// pipeline logging).
type BatchCounts struct {
	Inserted           int
	Updated            int
	Confirmed          int
	BecameUnavailable  int
	BecameAvailable    int
}

func (b WriteBatch) Counts() BatchCounts {
	return BatchCounts{
		Inserted:          len(b.Inserts),
		Updated:           len(b.Updates),
		Confirmed:         len(b.Confirmations),
		BecameUnavailable: len(b.Unavailable),
		BecameAvailable:   len(b.Available),
	}
}
