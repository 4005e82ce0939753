package cache

import (
	"testing"
	"time"

	"github.com/lineform/scraper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkt(id string, line float64, odds ...float64) domain.MappedMarket {
	names := []string{"1", "X", "2"}
	outcomes := make([]domain.Outcome, 0, len(odds))
	for i, o := range odds {
		name := "O"
		if i < len(names) {
			name = names[i]
		}
		outcomes = append(outcomes, domain.Outcome{Name: name, Odds: o, Active: true})
	}
	m := domain.MappedMarket{CanonicalMarketID: id, DisplayName: id, Outcomes: outcomes}
	if line != 0 {
		m.Line = domain.LineOf(line)
	}
	return m
}

func TestCache_Put_FirstObservationInsertsEveryMarket(t *testing.T) {
	c := New()
	batch := c.Put(1, domain.Betpawa, []domain.MappedMarket{mkt("1X2", 0, 2.1, 3.3, 3.4)}, time.Now())

	require.Len(t, batch.Inserts, 1)
	assert.Empty(t, batch.Updates)
	assert.Empty(t, batch.Unavailable)
	assert.Empty(t, batch.Available)
}

func TestCache_Put_UnchangedOddsProducesEmptyBatch(t *testing.T) {
	c := New()
	now := time.Now()
	c.Put(1, domain.Betpawa, []domain.MappedMarket{mkt("1X2", 0, 2.1, 3.3, 3.4)}, now)

	batch := c.Put(1, domain.Betpawa, []domain.MappedMarket{mkt("1X2", 0, 2.1, 3.3, 3.4)}, now.Add(time.Minute))
	assert.True(t, batch.Empty())
}

func TestCache_Put_ChangedOddsEmitsUpdate(t *testing.T) {
	c := New()
	now := time.Now()
	c.Put(1, domain.Betpawa, []domain.MappedMarket{mkt("1X2", 0, 2.1, 3.3, 3.4)}, now)

	batch := c.Put(1, domain.Betpawa, []domain.MappedMarket{mkt("1X2", 0, 2.2, 3.3, 3.4)}, now.Add(time.Minute))
	require.Len(t, batch.Updates, 1)
	assert.Empty(t, batch.Inserts)
}

func TestCache_Put_DisappearedMarketGoesUnavailableThenReappearsAvailable(t *testing.T) {
	c := New()
	now := time.Now()
	c.Put(1, domain.Betpawa, []domain.MappedMarket{mkt("1X2", 0, 2.1, 3.3, 3.4)}, now)

	gone := c.Put(1, domain.Betpawa, []domain.MappedMarket{}, now.Add(time.Minute))
	require.Len(t, gone.Unavailable, 1)

	back := c.Put(1, domain.Betpawa, []domain.MappedMarket{mkt("1X2", 0, 2.1, 3.3, 3.4)}, now.Add(2*time.Minute))
	require.Len(t, back.Available, 1)
	assert.Empty(t, back.Updates)
}

func TestCache_Put_ReplayReproducesFinalSnapshot(t *testing.T) {
	c := New()
	now := time.Now()
	c.Put(1, domain.Betpawa, []domain.MappedMarket{mkt("1X2", 0, 2.1, 3.3, 3.4)}, now)
	c.Put(1, domain.Betpawa, []domain.MappedMarket{mkt("1X2", 0, 2.2, 3.3, 3.4)}, now.Add(time.Minute))
	c.Put(1, domain.Betpawa, []domain.MappedMarket{mkt("1X2", 0, 2.2, 3.3, 3.4), mkt("OU", 2.5, 1.9, 1.95)}, now.Add(2*time.Minute))

	snaps := c.GetCurrent(1)
	snap := snaps[domain.Betpawa]
	require.Len(t, snap.Markets, 2)
	m := snap.Markets[domain.MarketIdentity{CanonicalMarketID: "1X2"}]
	assert.Equal(t, 2.2, m.Outcomes[0].Odds)
}

func TestCache_Confirm_ReturnsConfirmationPerPresentMarket(t *testing.T) {
	c := New()
	now := time.Now()
	c.Put(1, domain.Betpawa, []domain.MappedMarket{mkt("1X2", 0, 2.1, 3.3, 3.4), mkt("OU", 2.5, 1.9, 1.95)}, now)

	confirmations := c.Confirm(1, domain.Betpawa, now.Add(time.Minute))
	require.Len(t, confirmations, 2)
	for _, cf := range confirmations {
		assert.True(t, cf.Available)
	}
}

func TestCache_Confirm_UnknownSnapshotReturnsNil(t *testing.T) {
	c := New()
	confirmations := c.Confirm(999, domain.Betpawa, time.Now())
	assert.Nil(t, confirmations)
}

func TestCache_MarkUnavailable_IsMonotonic(t *testing.T) {
	c := New()
	now := time.Now()
	c.Put(1, domain.Betpawa, []domain.MappedMarket{mkt("1X2", 0, 2.1, 3.3, 3.4)}, now)

	first := c.MarkUnavailable(1, domain.Betpawa, now.Add(time.Minute))
	require.Len(t, first.Unavailable, 1)

	second := c.MarkUnavailable(1, domain.Betpawa, now.Add(2*time.Minute))
	assert.Empty(t, second.Unavailable, "already-unavailable markets must not re-emit")
}

func TestCanonicalize_IsIdempotentAndOrderIndependent(t *testing.T) {
	a := canonicalize([]domain.MappedMarket{mkt("1X2", 0, 2.1, 3.3, 3.4), mkt("OU", 2.5, 1.9, 1.95)})
	b := canonicalize([]domain.MappedMarket{mkt("OU", 2.5, 1.9, 1.95), mkt("1X2", 0, 2.1, 3.3, 3.4)})
	assert.Equal(t, a.digest, b.digest)
}

func TestCanonicalize_OutcomeOrderWithinMarketDoesNotAffectDigest(t *testing.T) {
	m1 := mkt("1X2", 0, 2.1, 3.3, 3.4)
	m2 := domain.MappedMarket{
		CanonicalMarketID: "1X2", DisplayName: "1X2",
		Outcomes: []domain.Outcome{
			{Name: "X", Odds: 3.3, Active: true},
			{Name: "2", Odds: 3.4, Active: true},
			{Name: "1", Odds: 2.1, Active: true},
		},
	}
	a := canonicalize([]domain.MappedMarket{m1})
	b := canonicalize([]domain.MappedMarket{m2})
	assert.Equal(t, a.digest, b.digest)
}

func TestStripTZ_NormalisesNonUTCLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	aware := time.Date(2026, 7, 31, 14, 0, 0, 0, loc)
	naive := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	assert.True(t, stripTZ(aware).Equal(naive))
	assert.Equal(t, time.UTC, stripTZ(aware).Location())
}

func TestEvictExpired_BoundaryAtExactlyOneHour(t *testing.T) {
	c := New()
	kickoff := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	c.SetKickoff(1, kickoff)
	c.SetKickoff(2, kickoff)
	c.Put(1, domain.Betpawa, []domain.MappedMarket{mkt("1X2", 0, 2.1, 3.3, 3.4)}, kickoff)
	c.Put(2, domain.Betpawa, []domain.MappedMarket{mkt("1X2", 0, 2.1, 3.3, 3.4)}, kickoff)

	survivesAt := kickoff.Add(time.Hour).Add(-time.Second) // K+59m59s
	evicted := c.EvictExpired(survivesAt)
	assert.Empty(t, evicted, "an event exactly inside the one hour window must survive")

	evictedAt := kickoff.Add(time.Hour).Add(time.Second) // K+1h00m01s
	evicted = c.EvictExpired(evictedAt)
	assert.ElementsMatch(t, []domain.ExternalMatchID{1, 2}, evicted)
	assert.Empty(t, c.GetCurrent(1))
}

func TestEvictExpired_AcceptsNonUTCNow(t *testing.T) {
	c := New()
	kickoff := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	c.SetKickoff(1, kickoff)
	c.Put(1, domain.Betpawa, []domain.MappedMarket{mkt("1X2", 0, 2.1, 3.3, 3.4)}, kickoff)

	loc := time.FixedZone("UTC+2", 2*60*60)
	nowAware := time.Date(2026, 7, 31, 15, 0, 1, 0, loc) // 13:00:01 UTC = K+1h00m01s
	evicted := c.EvictExpired(nowAware)
	assert.ElementsMatch(t, []domain.ExternalMatchID{1}, evicted)
}
