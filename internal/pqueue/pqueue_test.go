package pqueue

import (
	"testing"
	"time"

	"github.com/lineform/scraper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DrainsByUrgencyTierFirst(t *testing.T) {
	now := time.Now()
	q := New([]*Item{
		{Event: 1, Kickoff: now.Add(10 * 24 * time.Hour), Tier: TierOver7d},
		{Event: 2, Kickoff: now.Add(2 * time.Hour), Tier: TierUnder24h},
		{Event: 3, Kickoff: now.Add(48 * time.Hour), Tier: Tier24to72h},
	})

	first := q.Pop()
	require.NotNil(t, first)
	assert.Equal(t, domain.ExternalMatchID(2), first.Event)

	second := q.Pop()
	assert.Equal(t, domain.ExternalMatchID(3), second.Event)

	third := q.Pop()
	assert.Equal(t, domain.ExternalMatchID(1), third.Event)

	assert.Nil(t, q.Pop())
}

func TestQueue_WithinTierOrdersByKickoffAscending(t *testing.T) {
	now := time.Now()
	q := New([]*Item{
		{Event: 1, Kickoff: now.Add(20 * time.Hour), Tier: TierUnder24h},
		{Event: 2, Kickoff: now.Add(5 * time.Hour), Tier: TierUnder24h},
	})

	assert.Equal(t, domain.ExternalMatchID(2), q.Pop().Event)
	assert.Equal(t, domain.ExternalMatchID(1), q.Pop().Event)
}

func TestQueue_HigherCoverageSortsFirstWithinTierAndKickoff(t *testing.T) {
	kickoff := time.Now().Add(10 * time.Hour)
	q := New([]*Item{
		{Event: 1, Kickoff: kickoff, Tier: TierUnder24h, Coverage: 1},
		{Event: 2, Kickoff: kickoff, Tier: TierUnder24h, Coverage: 3},
	})

	assert.Equal(t, domain.ExternalMatchID(2), q.Pop().Event)
	assert.Equal(t, domain.ExternalMatchID(1), q.Pop().Event)
}

func TestQueue_HasNoBetpawaSortsLastAsFinalTiebreaker(t *testing.T) {
	kickoff := time.Now().Add(10 * time.Hour)
	q := New([]*Item{
		{Event: 1, Kickoff: kickoff, Tier: TierUnder24h, Coverage: 2, HasNoBetpawa: true},
		{Event: 2, Kickoff: kickoff, Tier: TierUnder24h, Coverage: 2, HasNoBetpawa: false},
	})

	assert.Equal(t, domain.ExternalMatchID(2), q.Pop().Event)
	assert.Equal(t, domain.ExternalMatchID(1), q.Pop().Event)
}

func TestTierFor_Boundaries(t *testing.T) {
	now := time.Now()
	assert.Equal(t, TierUnder24h, TierFor(now.Add(23*time.Hour), now))
	assert.Equal(t, Tier24to72h, TierFor(now.Add(24*time.Hour), now))
	assert.Equal(t, Tier24to72h, TierFor(now.Add(71*time.Hour), now))
	assert.Equal(t, Tier3to7d, TierFor(now.Add(72*time.Hour), now))
	assert.Equal(t, Tier3to7d, TierFor(now.Add(6*24*time.Hour+23*time.Hour), now))
	assert.Equal(t, TierOver7d, TierFor(now.Add(7*24*time.Hour), now))
}

func TestQueue_PushAfterConstruction(t *testing.T) {
	q := New(nil)
	q.Push(&Item{Event: 1, Tier: TierUnder24h})
	require.Equal(t, 1, q.Len())
	assert.Equal(t, domain.ExternalMatchID(1), q.Pop().Event)
}
