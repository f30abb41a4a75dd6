package converter

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/trailboard/internal/domain"
)

type RoomResponse struct {
	ID           uuid.UUID             `json:"id"`
	House        string                `json:"house"`
	Name         string                `json:"name"`
	Mode         domain.BoardMode      `json:"mode"`
	LifetimeMs   int64                 `json:"lifetime_ms"`
	Housemaster  string                `json:"housemaster"`
	Participants []ParticipantResponse `json:"participants"`
	CreatedAt    time.Time             `json:"created_at"`
}

type ParticipantResponse struct {
	ID          string                   `json:"id"`
	DisplayName string                   `json:"display_name"`
	Color       string                   `json:"color,omitempty"`
	Status      domain.ParticipantStatus `json:"status"`
	JoinedAt    time.Time                `json:"joined_at"`
	LastSeen    time.Time                `json:"last_seen"`
}

func RoomToApi(r *domain.Room) *RoomResponse {
	r.Mutex.RLock()
	participants := make([]ParticipantResponse, 0, len(r.Participants))
	for _, p := range r.Participants {
		p.Mutex.RLock()
		participants = append(participants, ParticipantResponse{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Color:       p.Color,
			Status:      p.Status,
			JoinedAt:    p.JoinedAt,
			LastSeen:    p.LastSeen,
		})
		p.Mutex.RUnlock()
	}
	resp := &RoomResponse{
		ID:           r.ID,
		House:        r.HouseCode,
		Name:         r.Name,
		Mode:         r.Mode,
		LifetimeMs:   r.Lifetime.Milliseconds(),
		Housemaster:  r.Housemaster,
		Participants: participants,
		CreatedAt:    r.CreatedAt,
	}
	r.Mutex.RUnlock()

	slices.SortFunc(resp.Participants, func(a, b ParticipantResponse) int {
		return strings.Compare(a.ID, b.ID)
	})
	return resp
}
