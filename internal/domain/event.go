package domain

import "time"

// ExternalMatchID is the 8-digit SportRadar id present in every
// bookmaker's response for the same match; it is the cross-bookmaker key.
type ExternalMatchID int64

// Tournament is uniquely identified by (sport, name, country). Country
// may be null only when the tournament is truly international — same-name
// tournaments in different countries are distinct rows.
type Tournament struct {
	ID      int64
	Sport   string
	Name    string
	Country *string // nil => international
}

// Key returns the natural identity tuple used for upsert/lookup.
func (t Tournament) Key() TournamentKey {
	country := ""
	if t.Country != nil {
		country = *t.Country
	}
	return TournamentKey{Sport: t.Sport, Name: t.Name, Country: country}
}

// TournamentKey is the comparable natural key for a Tournament.
type TournamentKey struct {
	Sport   string
	Name    string
	Country string
}

// EventFilter narrows GET /events. A zero-value field means "no filter on
// this dimension" — Tournament empty, Countries nil, KickoffFrom/To nil.
// IncludeStarted defaults to false: events whose kickoff has already
// passed are excluded unless the caller explicitly asks for them.
type EventFilter struct {
	Tournament     string
	Countries      []string
	KickoffFrom    *time.Time
	KickoffTo      *time.Time
	IncludeStarted bool
}

// Event is created on first sighting by any bookmaker. The first sighting
// fills HomeTeam, AwayTeam, Kickoff, TournamentID and Sport, whichever
// bookmaker supplies it; later sightings overwrite those fields only when
// they come from a bookmaker of equal or higher BookmakerPrecedence (see
// ApplySighting), so Betpawa's metadata wins once Betpawa reports the event.
type Event struct {
	ExternalID   ExternalMatchID
	HomeTeam     string
	AwayTeam     string
	Kickoff      time.Time // naive UTC
	TournamentID int64
	Sport        string

	// sourcedFrom records which bookmaker last supplied HomeTeam/AwayTeam/
	// Kickoff/TournamentID, for last-writer-wins precedence resolution.
	SourcedFrom Bookmaker
}

// ApplySighting merges metadata from a newly observed sighting of the same
// event into e, honoring BookmakerPrecedence: a lower-precedence bookmaker
// (i.e. Betpawa over SportyBet over Bet9ja) never overwrites fields already
// set by a higher-precedence source, but may fill in fields the event does
// not have yet (e.g. a competitor-only sighting creating a bare event that
// Betpawa has not yet confirmed).
func (e *Event) ApplySighting(from Bookmaker, homeTeam, awayTeam string, kickoff time.Time, tournamentID int64, sport string) {
	if e.HomeTeam == "" && e.AwayTeam == "" {
		e.HomeTeam, e.AwayTeam, e.Kickoff, e.TournamentID, e.Sport, e.SourcedFrom = homeTeam, awayTeam, kickoff.UTC(), tournamentID, sport, from
		return
	}
	if BookmakerPrecedence(from) <= BookmakerPrecedence(e.SourcedFrom) {
		e.HomeTeam, e.AwayTeam, e.Kickoff, e.TournamentID, e.Sport, e.SourcedFrom = homeTeam, awayTeam, kickoff.UTC(), tournamentID, sport, from
	}
}

// DiscoveredEvent is the shape a bookmaker's discovery endpoint returns:
// just enough metadata to identify the match and its tournament.
type DiscoveredEvent struct {
	ExternalID   ExternalMatchID
	HomeTeam     string
	AwayTeam     string
	Kickoff      time.Time
	Sport        string
	Tournament   string
	Country      *string
}
