package domain

// Bookmaker is one of the closed set of three competitor feeds the
// coordinator fans out to. Betpawa is the canonical taxonomy source;
// SportyBet and Bet9ja are mapped into it by the mapping engine.
type Bookmaker string

const (
	Betpawa   Bookmaker = "betpawa"
	SportyBet Bookmaker = "sportybet"
	Bet9ja    Bookmaker = "bet9ja"
)

// AllBookmakers is the fixed, process-wide bookmaker set, in the
// precedence order used to resolve conflicting event metadata
// (see BookmakerPrecedence).
var AllBookmakers = [3]Bookmaker{Betpawa, SportyBet, Bet9ja}

// Valid reports whether b is one of the three known bookmakers.
func (b Bookmaker) Valid() bool {
	switch b {
	case Betpawa, SportyBet, Bet9ja:
		return true
	default:
		return false
	}
}

// BookmakerPrecedence returns a rank used for last-writer-wins
// resolution of event/tournament metadata supplied by more than one
// bookmaker: lower rank wins. Betpawa is canonical and always wins;
// among competitors SportyBet overrides Bet9ja when both disagree.
func BookmakerPrecedence(b Bookmaker) int {
	switch b {
	case Betpawa:
		return 0
	case SportyBet:
		return 1
	case Bet9ja:
		return 2
	default:
		return 99
	}
}

// BookmakerConfig is the static, seeded configuration row for a bookmaker:
// its display name and an optional override of the coordinator's default
// per-bookmaker concurrency cap.
type BookmakerConfig struct {
	Slug           Bookmaker
	DisplayName    string
	ConcurrencyCap int // 0 means "use the coordinator default"
}

// DefaultBookmakerConfigs is the insert-only seed data for the three
// bookmakers the system supports.
func DefaultBookmakerConfigs() []BookmakerConfig {
	return []BookmakerConfig{
		{Slug: Betpawa, DisplayName: "Betpawa", ConcurrencyCap: 50},
		{Slug: SportyBet, DisplayName: "SportyBet", ConcurrencyCap: 50},
		{Slug: Bet9ja, DisplayName: "Bet9ja", ConcurrencyCap: 15},
	}
}
