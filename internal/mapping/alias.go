package mapping

import "strings"

// NormalizeSeparators collapses the two bookmaker-native combo separator
// conventions ("1X - Under" vs "1X & Under") onto a single canonical form
// before comparison, preserving the logical order of the joined outcomes.
func NormalizeSeparators(label string) string {
	label = strings.ReplaceAll(label, " & ", " - ")
	return label
}

// aliasTables maps, per canonical market, a normalised bookmaker-native
// outcome label to its canonical name. Labels not present in a market's
// alias table are assumed to already be canonical (e.g. "Over"/"Under",
// which every bookmaker spells the same way).
var aliasTables = map[string]map[string]string{
	"1X2": {
		"1": "1", "home": "1", "x": "X", "draw": "X", "2": "2", "away": "2",
	},
	"DC": {
		"1x": "1X", "12": "12", "x2": "X2",
		"home/draw": "1X", "home/away": "12", "draw/away": "X2",
	},
	"BTS": {
		"yes": "Yes", "gg": "Yes", "no": "No", "ng": "No",
	},
	"AH": {
		"home": "Home", "1": "Home", "away": "Away", "2": "Away",
	},
}

// ResolveOutcomeAlias returns the canonical outcome name for a bookmaker's
// native outcome label within the given canonical market, collapsing
// separator conventions first. ok is false when the label cannot be placed
// in the canonical market's outcome set.
func ResolveOutcomeAlias(canonicalMarketID, nativeLabel string) (name string, ok bool) {
	normalized := NormalizeSeparators(nativeLabel)

	if table, hasTable := aliasTables[canonicalMarketID]; hasTable {
		if canon, found := table[strings.ToLower(normalized)]; found {
			normalized = canon
		}
	}

	cm, hasCanonical := LookupCanonical(canonicalMarketID)
	if !hasCanonical {
		return normalized, true // unknown canonical market: accept as-is, shape check happens elsewhere
	}
	for _, outcome := range cm.Outcomes {
		if strings.EqualFold(outcome, normalized) {
			return outcome, true
		}
	}
	return "", false
}

// RequiresLine reports whether a canonical market's identity includes a
// numeric line parameter.
func RequiresLine(canonicalMarketID string) bool {
	cm, ok := LookupCanonical(canonicalMarketID)
	return ok && cm.HasLine
}

// ResolveLine implements the documented fallback chain for locating a raw
// market's line value: prefer the explicit Line field, falling back to
// HandicapHome when Line is absent. ok is false when neither is present
// for a market that requires one.
func ResolveLine(raw RawMarketLineSource) (value float64, ok bool) {
	if raw.LineValue != nil {
		return *raw.LineValue, true
	}
	if raw.HandicapHomeValue != nil {
		return *raw.HandicapHomeValue, true
	}
	return 0, false
}

// RawMarketLineSource is the minimal shape ResolveLine needs; kept separate
// from domain.RawMarket so the fallback chain is independently testable.
type RawMarketLineSource struct {
	LineValue         *float64
	HandicapHomeValue *float64
}
