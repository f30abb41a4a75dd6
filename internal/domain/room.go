package domain

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Room is one shared board inside a house. It is the relay's unit of
// fan-out and owns the blackboard strokes late joiners are synced with.
type Room struct {
	Mutex        sync.RWMutex
	ID           uuid.UUID
	HouseCode    string
	Name         string
	Participants map[string]*Participant
	Housemaster  string
	Mode         BoardMode
	Lifetime     time.Duration
	CreatedAt    time.Time
}

func NewRoom(houseCode, name string, lifetime time.Duration) *Room {
	if lifetime <= 0 {
		lifetime = DefaultTrailLifetime
	}
	return &Room{
		ID:           uuid.New(),
		HouseCode:    NormalizeHouseCode(houseCode),
		Name:         strings.TrimSpace(name),
		Participants: make(map[string]*Participant),
		Mode:         ModeTrail,
		Lifetime:     lifetime,
		CreatedAt:    time.Now().UTC(),
	}
}

// Key identifies the room across houses.
func (r *Room) Key() string {
	return RoomKey(r.HouseCode, r.Name)
}

func RoomKey(houseCode, name string) string {
	return NormalizeHouseCode(houseCode) + "/" + strings.TrimSpace(name)
}

func NormalizeHouseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *Room) Summary() RoomSummary {
	r.Mutex.RLock()
	defer r.Mutex.RUnlock()
	return RoomSummary{Name: r.Name, Users: len(r.Participants)}
}

func (r *Room) IsEmpty() bool {
	r.Mutex.RLock()
	defer r.Mutex.RUnlock()
	return len(r.Participants) == 0
}
