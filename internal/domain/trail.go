package domain

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultTrailLifetime = 7500 * time.Millisecond

type speedRef struct {
	x, y float64
	at   time.Time
}

// TrailBuffer stores the marks of a single participant and decides which
// of them are still visible. Expired marks are filtered on every read and
// only physically dropped by Cleanup.
type TrailBuffer struct {
	mu       sync.RWMutex
	clock    clockwork.Clock
	marks    []Mark
	lifetime time.Duration
	strokeID int
	color    string
	last     *speedRef
}

func NewTrailBuffer(clock clockwork.Clock, lifetime time.Duration) *TrailBuffer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if lifetime <= 0 {
		lifetime = DefaultTrailLifetime
	}
	return &TrailBuffer{
		clock:    clock,
		marks:    make([]Mark, 0, 64),
		lifetime: lifetime,
	}
}

// StartStroke begins a new gesture. The next point gets speed 0 and is not
// connected to the previous one.
func (b *TrailBuffer) StartStroke() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.strokeID++
	b.last = nil
	return b.strokeID
}

func (b *TrailBuffer) CurrentStroke() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.strokeID
}

// SetColor sets the owner color stamped on subsequently added marks.
func (b *TrailBuffer) SetColor(color string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.color = color
}

func (b *TrailBuffer) AddPoint(x, y, pressure float64) Mark {
	if pressure <= 0 {
		pressure = 1.0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	speed := 0.0
	if b.last != nil {
		elapsed := float64(now.Sub(b.last.at)) / float64(time.Millisecond)
		if elapsed > 0 {
			speed = math.Hypot(x-b.last.x, y-b.last.y) / elapsed
		}
	}

	mark := Mark{
		X:         x,
		Y:         y,
		Timestamp: now.UnixMilli(),
		StrokeID:  b.strokeID,
		Color:     b.color,
		Kind:      MarkDraw,
		Pressure:  pressure,
		Speed:     speed,
	}
	b.marks = append(b.marks, mark)
	b.last = &speedRef{x: x, y: y, at: now}

	return mark
}

func (b *TrailBuffer) AddText(x, y float64, char string) Mark {
	b.mu.Lock()
	defer b.mu.Unlock()

	mark := Mark{
		X:         x,
		Y:         y,
		Timestamp: b.clock.Now().UnixMilli(),
		StrokeID:  b.strokeID,
		Color:     b.color,
		Kind:      MarkText,
		Pressure:  1.0,
		Char:      char,
	}
	b.marks = append(b.marks, mark)

	return mark
}

// Append stores marks produced elsewhere as they are, keeping their
// timestamps and speeds.
func (b *TrailBuffer) Append(marks ...Mark) {
	if len(marks) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marks = append(b.marks, marks...)
}

func (b *TrailBuffer) SetLifetime(lifetime time.Duration) {
	if lifetime <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lifetime = lifetime
}

func (b *TrailBuffer) Lifetime() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lifetime
}

// Active returns the visible marks, oldest first.
func (b *TrailBuffer) Active() []Mark {
	b.mu.RLock()
	defer b.mu.RUnlock()

	now := b.clock.Now().UnixMilli()
	horizon := b.lifetime.Milliseconds()

	active := make([]Mark, 0, len(b.marks))
	for _, m := range b.marks {
		if now-m.Timestamp < horizon {
			active = append(active, m)
		}
	}
	return active
}

func (b *TrailBuffer) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now().UnixMilli()
	horizon := b.lifetime.Milliseconds()

	kept := b.marks[:0]
	for _, m := range b.marks {
		if now-m.Timestamp < horizon {
			kept = append(kept, m)
		}
	}
	clear(b.marks[len(kept):])
	b.marks = kept
}

func (b *TrailBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.marks = make([]Mark, 0, 64)
	b.last = nil
}

// Len counts stored marks, expired ones included.
func (b *TrailBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.marks)
}

func (b *TrailBuffer) Age(m Mark) time.Duration {
	return b.clock.Since(m.Time())
}
