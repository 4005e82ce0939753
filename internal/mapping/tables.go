// Package mapping normalises each bookmaker's raw market catalogue into the
// single canonical taxonomy Betpawa defines. The tables in this file are
// static, versioned configuration: they are checked into source rather than
// stored in the database, the same way the teacher's connector packages
// carry their tag-to-category tables as package-scope maps.
package mapping

import "github.com/lineform/scraper/internal/domain"

// CanonicalMarket is the static definition of one entry in Betpawa's
// taxonomy: its display name, whether it carries a line parameter, and the
// UI categories it belongs to.
type CanonicalMarket struct {
	ID          string
	DisplayName string
	HasLine     bool
	Categories  map[domain.Category]struct{}
	// Outcomes lists the canonical outcome names in display order. The
	// mapping engine rejects any raw market whose resolved outcome set
	// does not match this set exactly.
	Outcomes []string
}

func cats(cs ...domain.Category) map[domain.Category]struct{} {
	m := make(map[domain.Category]struct{}, len(cs))
	for _, c := range cs {
		m[c] = struct{}{}
	}
	return m
}

// canonicalMarkets is Betpawa's taxonomy — the identifiers are used
// unchanged since Betpawa is the canonical bookmaker.
var canonicalMarkets = map[string]CanonicalMarket{
	"1X2": {
		ID: "1X2", DisplayName: "Match Result", HasLine: false,
		Categories: cats(domain.CategoryPopular),
		Outcomes:   []string{"1", "X", "2"},
	},
	"OU": {
		ID: "OU", DisplayName: "Over/Under", HasLine: true,
		Categories: cats(domain.CategoryPopular, domain.CategoryGoals),
		Outcomes:   []string{"Over", "Under"},
	},
	"AH": {
		ID: "AH", DisplayName: "Asian Handicap", HasLine: true,
		Categories: cats(domain.CategoryHandicaps),
		Outcomes:   []string{"Home", "Away"},
	},
	"DC": {
		ID: "DC", DisplayName: "Double Chance", HasLine: false,
		Categories: cats(domain.CategoryPopular, domain.CategoryCombos),
		Outcomes:   []string{"1X", "12", "X2"},
	},
	"BTS": {
		ID: "BTS", DisplayName: "Both Teams To Score", HasLine: false,
		Categories: cats(domain.CategoryPopular, domain.CategoryGoals),
		Outcomes:   []string{"Yes", "No"},
	},
	"HT1X2": {
		ID: "HT1X2", DisplayName: "Half Time Result", HasLine: false,
		Categories: cats(domain.CategoryHalves),
		Outcomes:   []string{"1", "X", "2"},
	},
	"HTOU": {
		ID: "HTOU", DisplayName: "Half Time Over/Under", HasLine: true,
		Categories: cats(domain.CategoryHalves, domain.CategoryGoals),
		Outcomes:   []string{"Over", "Under"},
	},
	"HTFTCOMBO": {
		ID: "HTFTCOMBO", DisplayName: "Half Time / Full Time", HasLine: false,
		Categories: cats(domain.CategoryCombos),
		Outcomes:   []string{"1X - Under", "1X - Over", "12 - Under", "12 - Over", "X2 - Under", "X2 - Over"},
	},
	"CORNERSOU": {
		ID: "CORNERSOU", DisplayName: "Total Corners Over/Under", HasLine: true,
		Categories: cats(domain.CategoryCorners),
		Outcomes:   []string{"Over", "Under"},
	},
	"CARDSOU": {
		ID: "CARDSOU", DisplayName: "Total Cards Over/Under", HasLine: true,
		Categories: cats(domain.CategoryCards),
		Outcomes:   []string{"Over", "Under"},
	},
	"CORRECTSCORE": {
		ID: "CORRECTSCORE", DisplayName: "Correct Score", HasLine: false,
		Categories: cats(domain.CategorySpecials),
		Outcomes:   []string{"1:0", "2:0", "2:1", "0:0", "1:1", "2:2", "0:1", "0:2", "1:2"},
	},
}

// LookupCanonical returns the static definition for a canonical market id.
func LookupCanonical(id string) (CanonicalMarket, bool) {
	cm, ok := canonicalMarkets[id]
	return cm, ok
}

// CategoriesFor returns the category tag set for a canonical market id,
// defaulting to {Other} for anything not in the static table.
func CategoriesFor(id string) map[domain.Category]struct{} {
	if cm, ok := canonicalMarkets[id]; ok {
		return cm.Categories
	}
	return cats(domain.CategoryOther)
}

// bookmakerMarketIDTable maps a competitor's native market id to Betpawa's
// canonical id, per bookmaker.
var bookmakerMarketIDTable = map[domain.Bookmaker]map[string]string{
	domain.SportyBet: {
		"1":    "1X2",
		"18":   "OU",
		"16":   "AH",
		"10":   "DC",
		"29":   "BTS",
		"13":   "HT1X2",
		"26":   "HTOU",
		"9":    "HTFTCOMBO",
		"62":   "CORNERSOU",
		"80":   "CARDSOU",
		"1001": "CORRECTSCORE",
	},
	domain.Bet9ja: {
		"S_1X2":    "1X2",
		"S_OU25":   "OU",
		"S_AH":     "AH",
		"S_DC":     "DC",
		"S_GG":     "BTS",
		"S_HT1X2":  "HT1X2",
		"S_HTOU":   "HTOU",
		"S_HTFT":   "HTFTCOMBO",
		"S_CORNOU": "CORNERSOU",
		"S_CARDOU": "CARDSOU",
	},
}

// CanonicalIDFor resolves a bookmaker-native market id to Betpawa's
// canonical id. Betpawa's own ids are canonical by definition — the engine
// never calls this for Betpawa markets.
func CanonicalIDFor(bookmaker domain.Bookmaker, nativeID string) (string, bool) {
	table, ok := bookmakerMarketIDTable[bookmaker]
	if !ok {
		return "", false
	}
	id, ok := table[nativeID]
	return id, ok
}
