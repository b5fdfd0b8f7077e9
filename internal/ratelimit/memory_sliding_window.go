package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemorySlidingWindow is the in-process sliding window limiter.
//
// Each identity owns an ordered slice of admission timestamps. Entries
// older than the window are evicted lazily on every check, which makes
// admission a true rolling window: a burst straddling a fixed-bucket
// boundary cannot double the effective rate.
//
// The identity map is bounded by LRU eviction so idle clients cannot grow
// memory without limit. Evicting an idle identity forgets its window,
// which only ever relaxes the limit for clients that stayed silent long
// enough to fall off the end of the LRU.
type MemorySlidingWindow struct {
	limit      int
	window     time.Duration
	maxClients int

	mu      sync.Mutex
	clients map[string]*clientWindow
	lru     *list.List // front = most recently used identity

	now func() time.Time
}

// clientWindow holds one identity's admission timestamps. The entry mutex
// scopes window mutation to a single identity, so checks for distinct
// identities never contend on each other's pruning.
type clientWindow struct {
	mu     sync.Mutex
	stamps []time.Time
	elem   *list.Element // identity's position in the LRU list
}

const DefaultMaxClients = 10000

func NewMemorySlidingWindow(limit int, window time.Duration, maxClients int) *MemorySlidingWindow {
	if maxClients <= 0 {
		maxClients = DefaultMaxClients
	}
	return &MemorySlidingWindow{
		limit:      limit,
		window:     window,
		maxClients: maxClients,
		clients:    make(map[string]*clientWindow),
		lru:        list.New(),
		now:        time.Now,
	}
}

func (m *MemorySlidingWindow) Admit(_ context.Context, identity string) (Decision, error) {
	now := m.now()

	cw := m.lookup(identity)

	cw.mu.Lock()
	defer cw.mu.Unlock()

	// Lazy eviction of entries that fell out of the trailing window.
	cutoff := now.Add(-m.window)
	kept := cw.stamps
	for len(kept) > 0 && !kept[0].After(cutoff) {
		kept = kept[1:]
	}
	cw.stamps = append(cw.stamps[:0], kept...)

	if len(cw.stamps) >= m.limit {
		// Rejected requests do not record a timestamp, so a throttled
		// client cannot extend its own penalty by retrying.
		resetAt := cw.stamps[0].Add(m.window)
		return Decision{
			Allowed:    false,
			Limit:      m.limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}, nil
	}

	cw.stamps = append(cw.stamps, now)
	return Decision{
		Allowed:   true,
		Limit:     m.limit,
		Remaining: m.limit - len(cw.stamps),
		ResetAt:   cw.stamps[0].Add(m.window),
	}, nil
}

// lookup returns the identity's window, creating it on first sight and
// marking it most recently used. Only the map and LRU bookkeeping happen
// under the registry lock.
func (m *MemorySlidingWindow) lookup(identity string) *clientWindow {
	m.mu.Lock()
	defer m.mu.Unlock()

	cw, ok := m.clients[identity]
	if ok {
		m.lru.MoveToFront(cw.elem)
		return cw
	}

	cw = &clientWindow{}
	cw.elem = m.lru.PushFront(identity)
	m.clients[identity] = cw

	for len(m.clients) > m.maxClients {
		back := m.lru.Back()
		if back == nil {
			break
		}
		evicted := back.Value.(string)
		m.lru.Remove(back)
		delete(m.clients, evicted)
	}

	return cw
}

// Size reports the number of tracked identities.
func (m *MemorySlidingWindow) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}
