// Package pqueue orders events for one scrape cycle's fan-out: a
// container/heap min-heap keyed on urgency tier, kickoff, coverage, and
// betpawa presence, rebuilt fresh from each cycle's discovery result.
package pqueue

import (
	"container/heap"
	"time"

	"github.com/lineform/scraper/internal/domain"
)

// UrgencyTier buckets an event by time-to-kickoff. Lower values are more
// urgent and sort first.
type UrgencyTier int

const (
	TierUnder24h UrgencyTier = iota
	Tier24to72h
	Tier3to7d
	TierOver7d
)

// TierFor buckets the gap between kickoff and now into an UrgencyTier.
// In-play events (kickoff already passed) are out of scope for scraping
// priority and are not expected to reach this function.
func TierFor(kickoff, now time.Time) UrgencyTier {
	switch gap := kickoff.Sub(now); {
	case gap < 24*time.Hour:
		return TierUnder24h
	case gap < 72*time.Hour:
		return Tier24to72h
	case gap < 7*24*time.Hour:
		return Tier3to7d
	default:
		return TierOver7d
	}
}

// Item is one event awaiting a fetch this cycle.
type Item struct {
	Event        domain.ExternalMatchID
	Kickoff      time.Time
	Tier         UrgencyTier
	Coverage     int  // number of bookmakers already known to offer the event
	HasNoBetpawa bool // true if Betpawa is not among the covering bookmakers

	index int
}

type itemHeap []*Item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.Tier != b.Tier {
		return a.Tier < b.Tier
	}
	if !a.Kickoff.Equal(b.Kickoff) {
		return a.Kickoff.Before(b.Kickoff)
	}
	if a.Coverage != b.Coverage {
		return a.Coverage > b.Coverage // higher coverage sorts first
	}
	return !a.HasNoBetpawa && b.HasNoBetpawa
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	item := x.(*Item)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	item.index = -1
	*h = old[:n-1]
	return item
}

// Queue is the cycle-scoped priority queue the coordinator drains via its
// fan-out worker pool. Not safe for concurrent use — the coordinator owns
// it exclusively for the duration of one cycle.
type Queue struct {
	h itemHeap
}

// New builds a queue from a fresh set of items, typically one per event
// discovered this cycle.
func New(items []*Item) *Queue {
	h := make(itemHeap, len(items))
	copy(h, items)
	heap.Init(&h)
	return &Queue{h: h}
}

// Len reports the number of items remaining.
func (q *Queue) Len() int { return q.h.Len() }

// Pop removes and returns the highest-priority item, or nil if empty.
func (q *Queue) Pop() *Item {
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*Item)
}

// Push adds an item to the queue, preserving heap order.
func (q *Queue) Push(item *Item) {
	heap.Push(&q.h, item)
}
