package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/trailboard/internal/domain"
	"github.com/immxrtalbeast/trailboard/internal/repository"
	"github.com/immxrtalbeast/trailboard/lib/logger/sl"
	"github.com/jonboulle/clockwork"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNotHousemaster      = errors.New("only the housemaster can do that")
	ErrUnsupportedMessage  = errors.New("unsupported message type")
	ErrInvalidJoin         = errors.New("house code and room name are required")
	ErrInvalidPayload      = errors.New("invalid payload")
)

// RoomService is the relay hub. It keeps the participants of every room,
// applies blackboard edits to the room's stroke store and fans messages
// out to the other members.
type RoomService struct {
	rooms    repository.RoomRepository
	log      *slog.Logger
	clock    clockwork.Clock
	lifetime time.Duration

	mu      sync.RWMutex
	strokes map[uuid.UUID]repository.StrokeRepository

	// lifecycle orders room creation and registration against the removal
	// of empty rooms.
	lifecycle sync.Mutex
}

func NewRoomService(rooms repository.RoomRepository, log *slog.Logger, clock clockwork.Clock, lifetime time.Duration) *RoomService {
	if log == nil {
		log = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if lifetime <= 0 {
		lifetime = domain.DefaultTrailLifetime
	}
	return &RoomService{
		rooms:    rooms,
		log:      log,
		clock:    clock,
		lifetime: lifetime,
		strokes:  make(map[uuid.UUID]repository.StrokeRepository),
	}
}

// Join registers a participant in the requested room, creating the room on
// first use. A join carrying a session id that is already present replaces
// the old connection, so reconnecting clients keep their identity.
func (s *RoomService) Join(ctx context.Context, req domain.Join) (*domain.Participant, *domain.Room, error) {
	const op = "service.room.join"

	house := domain.NormalizeHouseCode(req.HouseCode)
	name := strings.TrimSpace(req.RoomName)
	if house == "" || name == "" {
		return nil, nil, ErrInvalidJoin
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	log := s.log.With(
		slog.String("op", op),
		slog.String("house", house),
		slog.String("room", name),
		slog.String("session_id", sessionID),
	)

	displayName := strings.TrimSpace(req.UserName)
	if displayName == "" {
		displayName = "Anonymous"
	}
	participant := domain.NewParticipant(sessionID, displayName, req.Color)
	participant.SetStatus(domain.ParticipantConnected)

	s.lifecycle.Lock()
	room, err := s.getOrCreateRoom(ctx, house, name)
	if err != nil {
		s.lifecycle.Unlock()
		log.Error("failed to get room", sl.Err(err))
		return nil, nil, err
	}
	room.Mutex.Lock()
	previous := room.Participants[sessionID]
	room.Participants[sessionID] = participant
	if _, ok := room.Participants[room.Housemaster]; !ok || room.Housemaster == "" {
		room.Housemaster = sessionID
	}
	isHousemaster := room.Housemaster == sessionID
	mode := room.Mode
	lifetime := room.Lifetime
	room.Mutex.Unlock()
	s.lifecycle.Unlock()

	if previous != nil {
		log.Info("replacing previous connection")
		previous.Close()
	}

	summaries, err := s.ListRooms(ctx, house)
	if err != nil {
		return nil, nil, err
	}

	s.send(participant, &domain.Joined{
		SessionID:     sessionID,
		IsHousemaster: isHousemaster,
		Rooms:         summaries,
		Mode:          mode,
		Lifetime:      lifetime.Milliseconds(),
	})
	s.send(participant, &domain.TafelSync{Strokes: s.storeFor(room.ID).ExportAll()})
	s.broadcastRooms(ctx, house)

	log.Info("participant joined",
		slog.String("display_name", displayName),
		slog.Bool("housemaster", isHousemaster),
		slog.Int("participants", room.Summary().Users),
	)
	return participant, room, nil
}

// Leave unregisters sessionID. The connection in participant must still be
// the registered one; a stale connection replaced by a reconnect is only
// closed. Empty rooms are dropped together with their strokes.
func (s *RoomService) Leave(ctx context.Context, roomID uuid.UUID, participant *domain.Participant) error {
	const op = "service.room.leave"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room_id", roomID.String()),
		slog.String("session_id", participant.ID),
	)

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		return err
	}

	promoted, removed, err := s.detach(ctx, room, participant)
	if err != nil {
		participant.Close()
		return err
	}

	participant.Close()
	log.Info("participant left")
	if removed {
		log.Info("empty room removed")
	}

	room.Mutex.RLock()
	mode := room.Mode
	lifetime := room.Lifetime
	room.Mutex.RUnlock()

	if promoted != nil {
		summaries, err := s.ListRooms(ctx, room.HouseCode)
		if err == nil {
			s.send(promoted, &domain.Joined{
				SessionID:     promoted.ID,
				IsHousemaster: true,
				Rooms:         summaries,
				Mode:          mode,
				Lifetime:      lifetime.Milliseconds(),
			})
		}
		log.Info("housemaster handed over", slog.String("housemaster", promoted.ID))
	}

	s.broadcastRooms(ctx, room.HouseCode)
	return nil
}

// detach unregisters participant and hands the housemaster role over. When
// the room is left empty it is deleted together with its strokes before a
// concurrent Join can register in it.
func (s *RoomService) detach(ctx context.Context, room *domain.Room, participant *domain.Participant) (*domain.Participant, bool, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	room.Mutex.Lock()
	current, ok := room.Participants[participant.ID]
	if !ok || current != participant {
		room.Mutex.Unlock()
		return nil, false, ErrParticipantNotFound
	}
	delete(room.Participants, participant.ID)

	var promoted *domain.Participant
	if room.Housemaster == participant.ID {
		room.Housemaster = ""
		for _, p := range room.Participants {
			if promoted == nil || p.JoinedAt.Before(promoted.JoinedAt) {
				promoted = p
			}
		}
		if promoted != nil {
			room.Housemaster = promoted.ID
		}
	}
	room.Mutex.Unlock()

	if !room.IsEmpty() {
		return promoted, false, nil
	}
	if err := s.rooms.Delete(ctx, room.ID); err != nil && !errors.Is(err, repository.ErrRoomNotFound) {
		return nil, false, err
	}
	s.mu.Lock()
	delete(s.strokes, room.ID)
	s.mu.Unlock()
	return nil, true, nil
}

// HandleMessage applies a message sent by sessionID and relays it to the
// rest of the room.
func (s *RoomService) HandleMessage(ctx context.Context, roomID uuid.UUID, sessionID string, msg domain.Message) error {
	const op = "service.room.message"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room_id", roomID.String()),
		slog.String("session_id", sessionID),
		slog.String("type", string(msg.Type)),
	)

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		return err
	}

	room.Mutex.RLock()
	sender, ok := room.Participants[sessionID]
	room.Mutex.RUnlock()
	if !ok {
		return ErrParticipantNotFound
	}
	sender.Touch()

	payload, err := domain.DecodeOutbound(msg)
	if err != nil {
		log.Debug("dropping message", sl.Err(err))
		return err
	}

	origin := domain.Origin{SessionID: sender.ID, UserName: sender.Name()}
	store := s.storeFor(room.ID)

	switch p := payload.(type) {
	case *domain.DrawPoints:
		s.relay(room, &domain.RemoteDrawPoints{Origin: origin, Points: p.Points}, sender.ID)
	case *domain.StrokeStart:
		s.relay(room, &domain.RemoteStrokeStart{Origin: origin, StrokeID: p.StrokeID, Timestamp: p.Timestamp}, sender.ID)
	case *domain.StrokeEnd:
		s.relay(room, &domain.RemoteStrokeEnd{Origin: origin, StrokeID: p.StrokeID}, sender.ID)
	case *domain.CursorMove:
		s.relay(room, &domain.RemoteCursor{Origin: origin, X: p.X, Y: p.Y, Timestamp: p.Timestamp}, sender.ID)
	case *domain.SettingsUpdate:
		s.relay(room, &domain.RemoteSettings{Origin: origin, Settings: p.Settings}, sender.ID)
	case *domain.ModeChange:
		if !p.Mode.Valid() {
			return fmt.Errorf("%w: mode %q", ErrInvalidPayload, p.Mode)
		}
		if err := requireHousemaster(room, sender.ID); err != nil {
			return err
		}
		room.Mutex.Lock()
		room.Mode = p.Mode
		room.Mutex.Unlock()
		log.Info("mode changed", slog.String("mode", string(p.Mode)))
		s.relay(room, &domain.ModeChange{Origin: origin, Mode: p.Mode}, "")
	case *domain.RoomLifetimeChange:
		if p.Lifetime <= 0 {
			return fmt.Errorf("%w: lifetime %d", ErrInvalidPayload, p.Lifetime)
		}
		if err := requireHousemaster(room, sender.ID); err != nil {
			return err
		}
		room.Mutex.Lock()
		room.Lifetime = time.Duration(p.Lifetime) * time.Millisecond
		room.Mutex.Unlock()
		log.Info("lifetime changed", slog.Int64("lifetime_ms", p.Lifetime))
		s.relay(room, &domain.RoomLifetimeChange{Origin: origin, Lifetime: p.Lifetime}, "")
	case *domain.TafelStroke:
		stroke := p.Stroke
		if stroke.StrokeID == "" {
			return fmt.Errorf("%w: stroke id is required", ErrInvalidPayload)
		}
		if existing, ok := store.Get(stroke.StrokeID); ok && existing.OwnerID != sender.ID {
			return fmt.Errorf("%w: stroke %s belongs to another participant", ErrInvalidPayload, stroke.StrokeID)
		}
		stroke.OwnerID = sender.ID
		stroke.OwnerName = origin.UserName
		if stroke.CreatedAt == 0 {
			stroke.CreatedAt = s.clock.Now().UnixMilli()
		}
		store.Add(stroke)
		s.relay(room, &domain.TafelStroke{Origin: origin, Stroke: stroke}, sender.ID)
	case *domain.TafelDrawing:
		if !store.IsOwnedBy(p.StrokeID, sender.ID) {
			log.Debug("ignoring points for foreign stroke", slog.String("stroke_id", p.StrokeID))
			return nil
		}
		store.AppendPoints(p.StrokeID, p.Points)
		s.relay(room, &domain.TafelDrawing{Origin: origin, StrokeID: p.StrokeID, Points: p.Points}, sender.ID)
	case *domain.TafelErase:
		owned := make([]string, 0, len(p.StrokeIDs))
		for _, id := range p.StrokeIDs {
			if store.IsOwnedBy(id, sender.ID) {
				owned = append(owned, id)
			}
		}
		deleted := store.DeleteMany(owned)
		if len(deleted) == 0 {
			return nil
		}
		s.relay(room, &domain.TafelErase{Origin: origin, StrokeIDs: deleted}, sender.ID)
	case *domain.TafelClear:
		if err := requireHousemaster(room, sender.ID); err != nil {
			return err
		}
		store.ClearAll()
		log.Info("board cleared")
		s.relay(room, &domain.TafelClear{Origin: origin}, sender.ID)
	case *domain.TafelClearMine:
		removed := store.ClearOwner(sender.ID)
		log.Debug("own strokes cleared", slog.Int("count", len(removed)))
		s.relay(room, &domain.TafelClearMine{Origin: origin}, sender.ID)
	case *domain.UserColorChange:
		sender.SetColor(p.Color)
		s.relay(room, &domain.UserColorChange{Origin: origin, Color: p.Color}, sender.ID)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedMessage, msg.Type)
	}

	return nil
}

// ListRooms summarizes the rooms of a house ordered by name.
func (s *RoomService) ListRooms(ctx context.Context, houseCode string) ([]domain.RoomSummary, error) {
	rooms, err := s.rooms.ListByHouse(ctx, houseCode)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.Summary())
	}
	slices.SortFunc(summaries, func(a, b domain.RoomSummary) int {
		return strings.Compare(a.Name, b.Name)
	})
	return summaries, nil
}

func (s *RoomService) ExportStrokes(ctx context.Context, houseCode, roomName string) ([]domain.Stroke, error) {
	room, err := s.Room(ctx, houseCode, roomName)
	if err != nil {
		return nil, err
	}
	return s.storeFor(room.ID).ExportAll(), nil
}

func (s *RoomService) Room(ctx context.Context, houseCode, roomName string) (*domain.Room, error) {
	room, err := s.rooms.GetByKey(ctx, houseCode, roomName)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

func (s *RoomService) getOrCreateRoom(ctx context.Context, house, name string) (*domain.Room, error) {
	for {
		room, err := s.rooms.GetByKey(ctx, house, name)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, repository.ErrRoomNotFound) {
			return nil, err
		}

		room = domain.NewRoom(house, name, s.lifetime)
		err = s.rooms.Create(ctx, room)
		if err == nil {
			s.log.Info("room created", slog.String("room_id", room.ID.String()), slog.String("key", room.Key()))
			return room, nil
		}
		if !errors.Is(err, repository.ErrRoomExists) {
			return nil, err
		}
	}
}

func (s *RoomService) storeFor(roomID uuid.UUID) repository.StrokeRepository {
	s.mu.RLock()
	store, ok := s.strokes[roomID]
	s.mu.RUnlock()
	if ok {
		return store
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if store, ok := s.strokes[roomID]; ok {
		return store
	}
	store = repository.NewInMemoryStrokeRepository()
	s.strokes[roomID] = store
	return store
}

func requireHousemaster(room *domain.Room, sessionID string) error {
	room.Mutex.RLock()
	defer room.Mutex.RUnlock()
	if room.Housemaster != sessionID {
		return ErrNotHousemaster
	}
	return nil
}

func (s *RoomService) send(p *domain.Participant, payload interface{ Type() domain.MessageType }) {
	msg, err := domain.Encode(payload)
	if err != nil {
		s.log.Error("failed to encode message", slog.String("type", string(payload.Type())), sl.Err(err))
		return
	}
	if !p.EnqueueEvent(msg) {
		s.log.Debug("dropping event", slog.String("peer", p.ID), slog.String("type", string(msg.Type)))
	}
}

// relay sends payload to every member of room except exclude.
func (s *RoomService) relay(room *domain.Room, payload interface{ Type() domain.MessageType }, exclude string) {
	msg, err := domain.Encode(payload)
	if err != nil {
		s.log.Error("failed to encode message", slog.String("type", string(payload.Type())), sl.Err(err))
		return
	}

	room.Mutex.RLock()
	participants := make([]*domain.Participant, 0, len(room.Participants))
	for id, p := range room.Participants {
		if id == exclude {
			continue
		}
		participants = append(participants, p)
	}
	room.Mutex.RUnlock()

	for _, p := range participants {
		if !p.EnqueueEvent(msg) {
			s.log.Debug("dropping broadcast event", slog.String("peer", p.ID), slog.String("type", string(msg.Type)))
		}
	}
}

func (s *RoomService) broadcastRooms(ctx context.Context, house string) {
	rooms, err := s.rooms.ListByHouse(ctx, house)
	if err != nil {
		s.log.Error("failed to list rooms", slog.String("house", house), sl.Err(err))
		return
	}
	summaries, err := s.ListRooms(ctx, house)
	if err != nil {
		return
	}
	for _, room := range rooms {
		s.relay(room, &domain.Rooms{Rooms: summaries}, "")
	}
}
