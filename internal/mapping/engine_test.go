package mapping

import (
	"testing"

	"github.com/lineform/scraper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(v float64) *float64 { return &v }

func TestEngine_Map_Betpawa1X2_Identity(t *testing.T) {
	e := NewEngine()
	raw := domain.RawMarket{
		Bookmaker: domain.Betpawa,
		MarketID:  "1X2",
		Outcomes: []domain.RawOutcome{
			{Label: "1", Odds: 2.10, Active: true},
			{Label: "X", Odds: 3.30, Active: true},
			{Label: "2", Odds: 3.40, Active: true},
		},
	}
	mapped, unmappable := e.Map(raw)
	require.Nil(t, unmappable)
	assert.Equal(t, "1X2", mapped.CanonicalMarketID)
	assert.Equal(t, []string{"1", "X", "2"}, outcomeNames(mapped.Outcomes))
}

func TestEngine_Map_CompetitorNoMappingEntry(t *testing.T) {
	e := NewEngine()
	raw := domain.RawMarket{Bookmaker: domain.SportyBet, MarketID: "99999"}
	_, unmappable := e.Map(raw)
	require.NotNil(t, unmappable)
	assert.Equal(t, domain.ReasonNoMappingEntry, unmappable.Reason)
}

func TestEngine_Map_LineFallbackToHandicapHome(t *testing.T) {
	e := NewEngine()
	raw := domain.RawMarket{
		Bookmaker:    domain.SportyBet,
		MarketID:     "18", // OU
		Line:         nil,
		HandicapHome: line(2.5),
		Outcomes: []domain.RawOutcome{
			{Label: "Over", Odds: 1.90, Active: true},
			{Label: "Under", Odds: 1.95, Active: true},
		},
	}
	mapped, unmappable := e.Map(raw)
	require.Nil(t, unmappable)
	assert.Equal(t, "OU", mapped.CanonicalMarketID)
	assert.Equal(t, 2.5, mapped.Line.Key())
}

func TestEngine_Map_MissingLineIsUnmappable(t *testing.T) {
	e := NewEngine()
	raw := domain.RawMarket{
		Bookmaker: domain.SportyBet,
		MarketID:  "18", // OU requires a line
		Outcomes: []domain.RawOutcome{
			{Label: "Over", Odds: 1.90, Active: true},
			{Label: "Under", Odds: 1.95, Active: true},
		},
	}
	_, unmappable := e.Map(raw)
	require.NotNil(t, unmappable)
	assert.Equal(t, domain.ReasonUnknownParamShape, unmappable.Reason)
}

func TestEngine_Map_OutcomeSeparatorNormalization(t *testing.T) {
	e := NewEngine()
	betpawa := domain.RawMarket{
		Bookmaker: domain.Betpawa,
		MarketID:  "HTFTCOMBO",
		Outcomes: []domain.RawOutcome{
			{Label: "1X - Under", Odds: 4.0, Active: true},
			{Label: "1X - Over", Odds: 6.0, Active: true},
			{Label: "12 - Under", Odds: 8.0, Active: true},
			{Label: "12 - Over", Odds: 10.0, Active: true},
			{Label: "X2 - Under", Odds: 5.0, Active: true},
			{Label: "X2 - Over", Odds: 7.0, Active: true},
		},
	}
	sporty := domain.RawMarket{
		Bookmaker: domain.SportyBet,
		MarketID:  "9",
		Outcomes: []domain.RawOutcome{
			{Label: "1X & Under", Odds: 4.0, Active: true},
			{Label: "1X & Over", Odds: 6.0, Active: true},
			{Label: "12 & Under", Odds: 8.0, Active: true},
			{Label: "12 & Over", Odds: 10.0, Active: true},
			{Label: "X2 & Under", Odds: 5.0, Active: true},
			{Label: "X2 & Over", Odds: 7.0, Active: true},
		},
	}

	mappedA, unmappableA := e.Map(betpawa)
	mappedB, unmappableB := e.Map(sporty)
	require.Nil(t, unmappableA)
	require.Nil(t, unmappableB)
	assert.Equal(t, outcomeNames(mappedA.Outcomes), outcomeNames(mappedB.Outcomes))
	assert.Equal(t, mappedA.Margin, mappedB.Margin)
}

func TestEngine_Map_OutcomesMismatch(t *testing.T) {
	e := NewEngine()
	raw := domain.RawMarket{
		Bookmaker: domain.Betpawa,
		MarketID:  "1X2",
		Outcomes: []domain.RawOutcome{
			{Label: "1", Odds: 2.1, Active: true},
			{Label: "Draw-or-away", Odds: 1.5, Active: true},
		},
	}
	_, unmappable := e.Map(raw)
	require.NotNil(t, unmappable)
	assert.Equal(t, domain.ReasonOutcomesMismatch, unmappable.Reason)
}

func TestEngine_Map_InsufficientActiveOutcomes(t *testing.T) {
	e := NewEngine()
	raw := domain.RawMarket{
		Bookmaker: domain.Betpawa,
		MarketID:  "1X2",
		Outcomes: []domain.RawOutcome{
			{Label: "1", Odds: 2.1, Active: true},
			{Label: "X", Odds: 3.3, Active: false},
			{Label: "2", Odds: 3.4, Active: false},
		},
	}
	_, unmappable := e.Map(raw)
	require.NotNil(t, unmappable)
	assert.Equal(t, domain.ReasonInsufficientActives, unmappable.Reason)
}

func TestEngine_Map_MarginComputation(t *testing.T) {
	e := NewEngine()
	raw := domain.RawMarket{
		Bookmaker: domain.Betpawa,
		MarketID:  "1X2",
		Outcomes: []domain.RawOutcome{
			{Label: "1", Odds: 2.0, Active: true},
			{Label: "X", Odds: 4.0, Active: true},
			{Label: "2", Odds: 4.0, Active: true},
		},
	}
	mapped, unmappable := e.Map(raw)
	require.Nil(t, unmappable)
	// (1/2 + 1/4 + 1/4 - 1) * 100 = 0.00
	assert.Equal(t, 0.0, mapped.Margin)
}

func TestEngine_Map_IsPureFunction(t *testing.T) {
	e := NewEngine()
	raw := domain.RawMarket{
		Bookmaker: domain.Betpawa,
		MarketID:  "1X2",
		Outcomes: []domain.RawOutcome{
			{Label: "1", Odds: 2.10, Active: true},
			{Label: "X", Odds: 3.30, Active: true},
			{Label: "2", Odds: 3.40, Active: true},
		},
	}
	a, _ := e.Map(raw)
	b, _ := e.Map(raw)
	assert.Equal(t, a, b)
}

func outcomeNames(outcomes []domain.Outcome) []string {
	names := make([]string, len(outcomes))
	for i, o := range outcomes {
		names[i] = o.Name
	}
	return names
}
