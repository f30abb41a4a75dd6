package client

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/trailboard/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Board is the local participant's drawing surface. Local edits are applied
// first and then sent; a failed send leaves the local state in place.
type Board struct {
	session   *Session
	clock     clockwork.Clock
	trail     *domain.TrailBuffer
	hitRadius float64

	mu       sync.Mutex
	settings domain.Settings
	tafel    *tafelStroke
}

type tafelStroke struct {
	id     string
	tool   domain.Tool
	width  float64
	last   domain.StrokePoint
	lastAt time.Time
}

// NewBoard creates the local board. hitRadius is the eraser radius used
// when Erase is given none.
func NewBoard(session *Session, clock clockwork.Clock, lifetime time.Duration, hitRadius float64) *Board {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if hitRadius <= 0 {
		hitRadius = domain.DefaultHitRadius
	}
	return &Board{
		session:   session,
		clock:     clock,
		trail:     domain.NewTrailBuffer(clock, lifetime),
		hitRadius: hitRadius,
		settings:  domain.DefaultSettings(),
	}
}

// Trail is the local fading trail.
func (b *Board) Trail() *domain.TrailBuffer { return b.trail }

func (b *Board) Settings() domain.Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settings.Clone()
}

func (b *Board) UpdateSettings(update domain.Settings) error {
	b.mu.Lock()
	b.settings = b.settings.Merge(update)
	color := b.settings.ColorOr("#ffffff")
	b.mu.Unlock()

	b.trail.SetColor(color)
	return b.session.SendSettings(update)
}

func (b *Board) SetColor(color string) error {
	b.mu.Lock()
	b.settings.Color = &color
	b.mu.Unlock()

	b.trail.SetColor(color)
	return b.session.SendUserColor(color)
}

// BeginStroke starts a new trail stroke. The local trail follows the room
// lifetime the session last received.
func (b *Board) BeginStroke() error {
	b.trail.SetLifetime(b.session.Peers().Lifetime())
	id := b.trail.StartStroke()
	return b.session.SendStrokeStart(id, b.clock.Now().UnixMilli())
}

func (b *Board) Draw(x, y, pressure float64) (domain.Mark, error) {
	mark := b.trail.AddPoint(x, y, pressure)
	return mark, b.session.SendPoints([]domain.Mark{mark})
}

func (b *Board) Type(x, y float64, char string) (domain.Mark, error) {
	mark := b.trail.AddText(x, y, char)
	return mark, b.session.SendPoints([]domain.Mark{mark})
}

func (b *Board) EndStroke() error {
	return b.session.SendStrokeEnd(b.trail.CurrentStroke())
}

// BeginTafelStroke starts a persistent stroke owned by the local session and
// returns its id.
func (b *Board) BeginTafelStroke(tool domain.Tool, x, y float64) (string, error) {
	now := b.clock.Now()

	b.mu.Lock()
	width := domain.DefaultStrokeWidth
	if b.settings.StrokeWidth != nil {
		width = *b.settings.StrokeWidth
	}
	color := b.settings.ColorOr("#ffffff")
	first := domain.StrokePoint{X: x, Y: y}
	b.tafel = &tafelStroke{
		id:     uuid.NewString(),
		tool:   tool,
		width:  width,
		last:   first,
		lastAt: now,
	}
	id := b.tafel.id
	b.mu.Unlock()

	stroke := domain.Stroke{
		StrokeID:  id,
		OwnerID:   b.session.SessionID(),
		OwnerName: b.session.DisplayName(),
		Tool:      tool,
		Color:     color,
		Width:     width,
		Points:    []domain.StrokePoint{first},
		CreatedAt: now.UnixMilli(),
	}
	b.session.Strokes().Add(stroke)
	return id, b.session.SendTafelStroke(stroke)
}

// ContinueTafelStroke appends a point to the stroke in progress. Without
// one it does nothing.
func (b *Board) ContinueTafelStroke(x, y float64) error {
	now := b.clock.Now()

	b.mu.Lock()
	if b.tafel == nil {
		b.mu.Unlock()
		return nil
	}
	point := domain.StrokePoint{X: x, Y: y}
	if elapsed := now.Sub(b.tafel.lastAt).Milliseconds(); elapsed > 0 {
		point.Speed = math.Hypot(x-b.tafel.last.X, y-b.tafel.last.Y) / float64(elapsed)
	}
	b.tafel.last = point
	b.tafel.lastAt = now
	id := b.tafel.id
	b.mu.Unlock()

	points := []domain.StrokePoint{point}
	b.session.Strokes().AppendPoints(id, points)
	return b.session.SendTafelDrawing(id, points)
}

func (b *Board) EndTafelStroke() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tafel = nil
}

// Erase removes the local session's strokes touched by path and returns
// their ids. Strokes of other participants are never erased. A radius of
// zero uses the board's hit radius.
func (b *Board) Erase(path []domain.Point, radius float64) ([]string, error) {
	if radius <= 0 {
		radius = b.hitRadius
	}
	store := b.session.Strokes()
	own := b.session.SessionID()

	hits := store.HitTestPath(path, radius)
	owned := make([]string, 0, len(hits))
	for _, id := range hits {
		if store.IsOwnedBy(id, own) {
			owned = append(owned, id)
		}
	}
	deleted := store.DeleteMany(owned)
	if len(deleted) == 0 {
		return deleted, nil
	}
	return deleted, b.session.SendTafelErase(deleted)
}

func (b *Board) ClearMine() ([]string, error) {
	removed := b.session.Strokes().ClearOwner(b.session.SessionID())
	return removed, b.session.SendTafelClearMine()
}

// ClearAll wipes the board locally and on the relay. The relay rejects it
// unless the local session is the housemaster.
func (b *Board) ClearAll() error {
	if !b.session.IsHousemaster() {
		return ErrNotHousemaster
	}
	b.session.Strokes().ClearAll()
	return b.session.SendTafelClear()
}
