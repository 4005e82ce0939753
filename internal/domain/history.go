package domain

import "time"

// HistoryPoint is an append-only record of one market observation: either
// a change (insert/update/availability flip) or a confirmation that the
// market was observed unchanged.
type HistoryPoint struct {
	Event       ExternalMatchID
	Bookmaker   Bookmaker
	Identity    MarketIdentity
	CapturedAt  time.Time
	Margin      float64
	Outcomes    []Outcome
	Available   bool
	Confirmed   bool // true when this point only verifies an unchanged state
}
