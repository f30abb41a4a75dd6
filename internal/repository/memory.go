package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/trailboard/internal/domain"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
)

type InMemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*domain.Room
	keys  map[string]uuid.UUID
}

func NewInMemoryRoomRepository() *InMemoryRoomRepository {
	return &InMemoryRoomRepository{
		rooms: make(map[uuid.UUID]*domain.Room),
		keys:  make(map[string]uuid.UUID),
	}
}

func (r *InMemoryRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if room == nil {
		return errors.New("room is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[room.Key()]; ok {
		return ErrRoomExists
	}

	r.rooms[room.ID] = room
	r.keys[room.Key()] = room.ID
	return nil
}

func (r *InMemoryRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return room, nil
}

func (r *InMemoryRoomRepository) GetByKey(ctx context.Context, houseCode, name string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.keys[domain.RoomKey(houseCode, name)]
	if !ok {
		return nil, ErrRoomNotFound
	}

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return room, nil
}

func (r *InMemoryRoomRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}

	delete(r.keys, room.Key())
	delete(r.rooms, id)
	return nil
}

func (r *InMemoryRoomRepository) ListByHouse(ctx context.Context, houseCode string) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	house := domain.NormalizeHouseCode(houseCode)

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Room, 0)
	for _, room := range r.rooms {
		if room.HouseCode == house {
			result = append(result, room)
		}
	}
	return result, nil
}
