package fetcher

import (
	"context"
	"testing"

	"github.com/lineform/scraper/internal/domain"
	"github.com/stretchr/testify/assert"
)

type fakeFetcher struct {
	bookmaker domain.Bookmaker
}

func (f fakeFetcher) Bookmaker() domain.Bookmaker { return f.bookmaker }

func (f fakeFetcher) Discover(ctx context.Context) ([]domain.DiscoveredEvent, error) {
	return nil, nil
}

func (f fakeFetcher) FetchEvent(ctx context.Context, externalID domain.ExternalMatchID) (domain.RawEventDocument, error) {
	return domain.RawEventDocument{Bookmaker: f.bookmaker, ExternalID: externalID}, nil
}

func TestRegistry_ForReturnsRegisteredFetcher(t *testing.T) {
	betpawa := fakeFetcher{bookmaker: domain.Betpawa}
	sportybet := fakeFetcher{bookmaker: domain.SportyBet}
	registry := NewRegistry(betpawa, sportybet)

	assert.Equal(t, betpawa, registry.For(domain.Betpawa))
	assert.Equal(t, sportybet, registry.For(domain.SportyBet))
}

func TestRegistry_ForReturnsNilWhenUnregistered(t *testing.T) {
	registry := NewRegistry(fakeFetcher{bookmaker: domain.Betpawa})
	assert.Nil(t, registry.For(domain.Bet9ja))
}

func TestRegistry_AllReturnsEveryFetcher(t *testing.T) {
	registry := NewRegistry(
		fakeFetcher{bookmaker: domain.Betpawa},
		fakeFetcher{bookmaker: domain.SportyBet},
		fakeFetcher{bookmaker: domain.Bet9ja},
	)
	assert.Len(t, registry.All(), 3)
}
