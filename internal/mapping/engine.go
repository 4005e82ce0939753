package mapping

import (
	"fmt"
	"math"

	"github.com/lineform/scraper/internal/domain"
)

// Mapper is the polymorphic capability the coordinator dispatches over:
// one implementation per bookmaker, each a pure function of its inputs.
type Mapper interface {
	Bookmaker() domain.Bookmaker
	Map(raw domain.RawMarket) (domain.MappedMarket, *domain.Unmappable)
}

// Engine maps raw markets from any bookmaker into Betpawa's canonical
// taxonomy. It holds no state beyond the static tables in this package and
// is safe for concurrent use: same input always produces the same output.
type Engine struct{}

// NewEngine constructs the mapping engine.
func NewEngine() *Engine { return &Engine{} }

// Bookmaker-specific thin wrappers satisfy Mapper for dispatch purposes;
// the algorithm itself is bookmaker-agnostic once the canonical id is
// resolved, so Engine.Map is reused for all three.

type bookmakerMapper struct {
	engine    *Engine
	bookmaker domain.Bookmaker
}

func (m bookmakerMapper) Bookmaker() domain.Bookmaker { return m.bookmaker }

func (m bookmakerMapper) Map(raw domain.RawMarket) (domain.MappedMarket, *domain.Unmappable) {
	raw.Bookmaker = m.bookmaker
	return m.engine.Map(raw)
}

// MapperFor returns a Mapper bound to one bookmaker.
func (e *Engine) MapperFor(b domain.Bookmaker) Mapper {
	return bookmakerMapper{engine: e, bookmaker: b}
}

// Map applies the mapping algorithm (§4.B) to one raw market document.
func (e *Engine) Map(raw domain.RawMarket) (domain.MappedMarket, *domain.Unmappable) {
	canonicalID, ok := e.resolveCanonicalID(raw)
	if !ok {
		return domain.MappedMarket{}, &domain.Unmappable{
			Reason: domain.ReasonNoMappingEntry,
			Detail: fmt.Sprintf("%s market %q", raw.Bookmaker, raw.MarketID),
		}
	}

	line, lineOK := e.resolveLine(canonicalID, raw)
	if !lineOK {
		return domain.MappedMarket{}, &domain.Unmappable{
			Reason: domain.ReasonUnknownParamShape,
			Detail: fmt.Sprintf("canonical market %s requires a line but none was found", canonicalID),
		}
	}

	outcomes, outcomesOK := e.resolveOutcomes(canonicalID, raw.Outcomes)
	if !outcomesOK {
		return domain.MappedMarket{}, &domain.Unmappable{
			Reason: domain.ReasonOutcomesMismatch,
			Detail: fmt.Sprintf("canonical market %s", canonicalID),
		}
	}

	margin, activeCount := computeMargin(outcomes)
	if activeCount < 2 {
		return domain.MappedMarket{}, &domain.Unmappable{Reason: domain.ReasonInsufficientActives}
	}

	cm, _ := LookupCanonical(canonicalID)
	return domain.MappedMarket{
		CanonicalMarketID: canonicalID,
		Line:              line,
		DisplayName:       cm.DisplayName,
		Categories:        CategoriesFor(canonicalID),
		Outcomes:          outcomes,
		Margin:            margin,
	}, nil
}

// resolveCanonicalID implements algorithm step 1: identity for Betpawa,
// table lookup for competitors.
func (e *Engine) resolveCanonicalID(raw domain.RawMarket) (string, bool) {
	if raw.Bookmaker == domain.Betpawa {
		return raw.MarketID, true
	}
	return CanonicalIDFor(raw.Bookmaker, raw.MarketID)
}

// resolveLine implements algorithm step 2.
func (e *Engine) resolveLine(canonicalID string, raw domain.RawMarket) (domain.Line, bool) {
	if !RequiresLine(canonicalID) {
		return domain.NoLine(), true
	}
	v, ok := ResolveLine(RawMarketLineSource{LineValue: raw.Line, HandicapHomeValue: raw.HandicapHome})
	if !ok {
		return domain.Line{}, false
	}
	return domain.LineOf(v), true
}

// resolveOutcomes implements algorithm step 3: alias each native label,
// reject on any unplaceable outcome, and enforce the canonical market's
// exact outcome set (order is taken from the canonical table, not from
// payload order, since different bookmakers enumerate outcomes differently).
func (e *Engine) resolveOutcomes(canonicalID string, raw []domain.RawOutcome) ([]domain.Outcome, bool) {
	byName := make(map[string]domain.RawOutcome, len(raw))
	for _, ro := range raw {
		name, ok := ResolveOutcomeAlias(canonicalID, ro.Label)
		if !ok {
			return nil, false
		}
		byName[name] = ro
	}

	cm, hasCanonical := LookupCanonical(canonicalID)
	if !hasCanonical {
		// Unknown canonical market (not in our static table): accept
		// whatever outcomes were resolved, in payload order.
		out := make([]domain.Outcome, 0, len(raw))
		for _, ro := range raw {
			name, _ := ResolveOutcomeAlias(canonicalID, ro.Label)
			out = append(out, domain.Outcome{Name: name, Odds: ro.Odds, Active: ro.Active})
		}
		return out, true
	}

	out := make([]domain.Outcome, 0, len(cm.Outcomes))
	for _, name := range cm.Outcomes {
		ro, ok := byName[name]
		if !ok {
			return nil, false
		}
		out = append(out, domain.Outcome{Name: name, Odds: ro.Odds, Active: ro.Active})
	}
	if len(out) != len(raw) {
		// Raw carried outcomes the canonical shape doesn't recognise.
		return nil, false
	}
	return out, true
}

// computeMargin implements algorithm step 4: margin = (Σ 1/odds - 1) * 100
// over active outcomes only, rounded to two decimals.
func computeMargin(outcomes []domain.Outcome) (margin float64, activeCount int) {
	var sum float64
	for _, o := range outcomes {
		if !o.Active || o.Odds <= 0 {
			continue
		}
		sum += 1 / o.Odds
		activeCount++
	}
	if activeCount < 2 {
		return 0, activeCount
	}
	margin = (sum - 1) * 100
	return math.Round(margin*100) / 100, activeCount
}
