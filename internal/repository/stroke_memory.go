package repository

import (
	"slices"
	"strings"
	"sync"

	"github.com/immxrtalbeast/trailboard/internal/domain"
)

// InMemoryStrokeRepository keeps strokes by id plus an owner index. Both
// maps are updated under the same lock; an owner without strokes has no
// index entry.
type InMemoryStrokeRepository struct {
	mu      sync.RWMutex
	strokes map[string]*domain.Stroke
	owners  map[string]map[string]struct{}
}

var _ StrokeRepository = (*InMemoryStrokeRepository)(nil)

func NewInMemoryStrokeRepository() *InMemoryStrokeRepository {
	return &InMemoryStrokeRepository{
		strokes: make(map[string]*domain.Stroke),
		owners:  make(map[string]map[string]struct{}),
	}
}

// Add stores stroke under its id. An existing stroke with the same id is
// replaced.
func (r *InMemoryStrokeRepository) Add(stroke domain.Stroke) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(stroke)
}

func (r *InMemoryStrokeRepository) add(stroke domain.Stroke) {
	if existing, ok := r.strokes[stroke.StrokeID]; ok {
		r.unindex(existing.OwnerID, existing.StrokeID)
	}

	stored := stroke.Clone()
	r.strokes[stored.StrokeID] = &stored

	ids, ok := r.owners[stored.OwnerID]
	if !ok {
		ids = make(map[string]struct{})
		r.owners[stored.OwnerID] = ids
	}
	ids[stored.StrokeID] = struct{}{}
}

func (r *InMemoryStrokeRepository) unindex(ownerID, strokeID string) {
	ids, ok := r.owners[ownerID]
	if !ok {
		return
	}
	delete(ids, strokeID)
	if len(ids) == 0 {
		delete(r.owners, ownerID)
	}
}

func (r *InMemoryStrokeRepository) AppendPoints(strokeID string, points []domain.StrokePoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	stroke, ok := r.strokes[strokeID]
	if !ok {
		return false
	}
	stroke.Points = append(stroke.Points, points...)
	return true
}

func (r *InMemoryStrokeRepository) Get(strokeID string) (domain.Stroke, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stroke, ok := r.strokes[strokeID]
	if !ok {
		return domain.Stroke{}, false
	}
	return stroke.Clone(), true
}

func (r *InMemoryStrokeRepository) Delete(strokeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delete(strokeID)
}

func (r *InMemoryStrokeRepository) delete(strokeID string) bool {
	stroke, ok := r.strokes[strokeID]
	if !ok {
		return false
	}
	delete(r.strokes, strokeID)
	r.unindex(stroke.OwnerID, strokeID)
	return true
}

// DeleteMany returns the ids that actually existed, in request order.
func (r *InMemoryStrokeRepository) DeleteMany(strokeIDs []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := make([]string, 0, len(strokeIDs))
	for _, id := range strokeIDs {
		if r.delete(id) {
			deleted = append(deleted, id)
		}
	}
	return deleted
}

func (r *InMemoryStrokeRepository) HitTestPoint(x, y, radius float64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hits := make([]string, 0)
	for _, stroke := range r.ordered() {
		if stroke.Touches(x, y, radius) {
			hits = append(hits, stroke.StrokeID)
		}
	}
	return hits
}

// HitTestPath only samples the given path points; segments between
// samples are not tested, so callers should sample densely.
func (r *InMemoryStrokeRepository) HitTestPath(path []domain.Point, radius float64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ordered := r.ordered()
	seen := make(map[string]struct{})
	hits := make([]string, 0)
	for _, p := range path {
		for _, stroke := range ordered {
			if _, ok := seen[stroke.StrokeID]; ok {
				continue
			}
			if stroke.Touches(p.X, p.Y, radius) {
				seen[stroke.StrokeID] = struct{}{}
				hits = append(hits, stroke.StrokeID)
			}
		}
	}
	return hits
}

func (r *InMemoryStrokeRepository) ByOwner(ownerID string) []domain.Stroke {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.owners[ownerID]
	if !ok {
		return []domain.Stroke{}
	}

	result := make([]domain.Stroke, 0, len(ids))
	for id := range ids {
		if stroke, ok := r.strokes[id]; ok {
			result = append(result, stroke.Clone())
		}
	}
	sortStrokes(result)
	return result
}

func (r *InMemoryStrokeRepository) IsOwnedBy(strokeID, ownerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stroke, ok := r.strokes[strokeID]
	return ok && stroke.OwnerID == ownerID
}

func (r *InMemoryStrokeRepository) ExportAll() []domain.Stroke {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Stroke, 0, len(r.strokes))
	for _, stroke := range r.ordered() {
		result = append(result, stroke.Clone())
	}
	return result
}

// ImportAll replaces the whole board with strokes.
func (r *InMemoryStrokeRepository) ImportAll(strokes []domain.Stroke) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clear()
	for _, stroke := range strokes {
		r.add(stroke)
	}
}

// ClearOwner removes every stroke of ownerID and returns their ids.
func (r *InMemoryStrokeRepository) ClearOwner(ownerID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids, ok := r.owners[ownerID]
	if !ok {
		return []string{}
	}

	removed := make([]string, 0, len(ids))
	for id := range ids {
		delete(r.strokes, id)
		removed = append(removed, id)
	}
	delete(r.owners, ownerID)

	slices.Sort(removed)
	return removed
}

func (r *InMemoryStrokeRepository) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clear()
}

func (r *InMemoryStrokeRepository) clear() {
	r.strokes = make(map[string]*domain.Stroke)
	r.owners = make(map[string]map[string]struct{})
}

func (r *InMemoryStrokeRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strokes)
}

// ordered returns the stored strokes oldest first. Callers must hold the lock.
func (r *InMemoryStrokeRepository) ordered() []*domain.Stroke {
	result := make([]*domain.Stroke, 0, len(r.strokes))
	for _, stroke := range r.strokes {
		result = append(result, stroke)
	}
	slices.SortFunc(result, func(a, b *domain.Stroke) int {
		return compareStrokes(*a, *b)
	})
	return result
}

func sortStrokes(strokes []domain.Stroke) {
	slices.SortFunc(strokes, compareStrokes)
}

func compareStrokes(a, b domain.Stroke) int {
	switch {
	case a.CreatedAt < b.CreatedAt:
		return -1
	case a.CreatedAt > b.CreatedAt:
		return 1
	}
	return strings.Compare(a.StrokeID, b.StrokeID)
}
