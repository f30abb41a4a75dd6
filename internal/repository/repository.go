package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/trailboard/internal/domain"
)

type RoomRepository interface {
	Create(ctx context.Context, room *domain.Room) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	GetByKey(ctx context.Context, houseCode, name string) (*domain.Room, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ListByHouse(ctx context.Context, houseCode string) ([]*domain.Room, error)
}

// StrokeRepository holds the blackboard strokes of one board. Operations
// never fail: a missing target is reported through the return value.
type StrokeRepository interface {
	Add(stroke domain.Stroke)
	AppendPoints(strokeID string, points []domain.StrokePoint) bool
	Get(strokeID string) (domain.Stroke, bool)
	Delete(strokeID string) bool
	DeleteMany(strokeIDs []string) []string
	HitTestPoint(x, y, radius float64) []string
	HitTestPath(path []domain.Point, radius float64) []string
	ByOwner(ownerID string) []domain.Stroke
	IsOwnedBy(strokeID, ownerID string) bool
	ExportAll() []domain.Stroke
	ImportAll(strokes []domain.Stroke)
	ClearOwner(ownerID string) []string
	ClearAll()
	Len() int
}
