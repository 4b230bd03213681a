package books

import (
	"sync"

	"github.com/google/uuid"
)

// MarketLocks serializes mutating work per market. Ledger replays and FIFO
// backfills read and rewrite whole-market state, so every mutation touching a
// market's ledger or batches must hold its lock; concurrent mutation would
// interleave stale available-quantity or balance reads.
type MarketLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewMarketLocks() *MarketLocks {
	return &MarketLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Lock acquires the mutex for a market, creating it on first use, and
// returns the unlock function.
func (l *MarketLocks) Lock(marketID uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[marketID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[marketID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
