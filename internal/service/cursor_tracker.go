package service

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/immxrtalbeast/trailboard/internal/domain"
	"github.com/jonboulle/clockwork"
)

// CursorTracker remembers the last pointer position of each remote peer.
// Records older than the staleness window are evicted lazily on read.
type CursorTracker struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	staleness time.Duration
	cursors   map[string]domain.Cursor
}

func NewCursorTracker(clock clockwork.Clock, staleness time.Duration) *CursorTracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if staleness <= 0 {
		staleness = domain.DefaultCursorStaleness
	}
	return &CursorTracker{
		clock:     clock,
		staleness: staleness,
		cursors:   make(map[string]domain.Cursor),
	}
}

func (t *CursorTracker) Update(id, displayName string, x, y float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cursors[id] = domain.Cursor{
		ID:          id,
		X:           x,
		Y:           y,
		DisplayName: displayName,
		LastSeen:    t.clock.Now(),
	}
}

func (t *CursorTracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cursors, id)
}

func (t *CursorTracker) ActiveSnapshot() []domain.Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evict()

	active := make([]domain.Cursor, 0, len(t.cursors))
	for _, c := range t.cursors {
		active = append(active, c)
	}
	slices.SortFunc(active, func(a, b domain.Cursor) int {
		return strings.Compare(a.ID, b.ID)
	})
	return active
}

func (t *CursorTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evict()
	return len(t.cursors)
}

func (t *CursorTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cursors = make(map[string]domain.Cursor)
}

func (t *CursorTracker) evict() {
	now := t.clock.Now()
	for id, c := range t.cursors {
		if now.Sub(c.LastSeen) > t.staleness {
			delete(t.cursors, id)
		}
	}
}
