package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/trailboard/internal/domain"
)

type RoomInteractor interface {
	Join(ctx context.Context, req domain.Join) (*domain.Participant, *domain.Room, error)
	Leave(ctx context.Context, roomID uuid.UUID, participant *domain.Participant) error
	HandleMessage(ctx context.Context, roomID uuid.UUID, sessionID string, msg domain.Message) error
	ListRooms(ctx context.Context, houseCode string) ([]domain.RoomSummary, error)
	ExportStrokes(ctx context.Context, houseCode, roomName string) ([]domain.Stroke, error)
	Room(ctx context.Context, houseCode, roomName string) (*domain.Room, error)
}

var _ RoomInteractor = (*RoomService)(nil)
