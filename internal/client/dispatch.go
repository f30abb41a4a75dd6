package client

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/immxrtalbeast/trailboard/internal/domain"
	"github.com/immxrtalbeast/trailboard/lib/logger/sl"
)

// dispatch decodes one frame, applies it to the stores and publishes it.
func (s *Session) dispatch(data []byte) {
	const op = "client.session.dispatch"
	log := s.log.With(slog.String("op", op))

	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn("discarding malformed frame", sl.Err(err))
		return
	}

	in, err := domain.DecodeInbound(msg)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownMessage) {
			log.Warn("ignoring unknown message", slog.String("type", string(msg.Type)))
		} else {
			log.Warn("discarding malformed message", slog.String("type", string(msg.Type)), sl.Err(err))
		}
		return
	}

	// room-wide changes are applied from the relay's echo
	if origin, ok := originOf(in); ok && origin.SessionID == s.sessionID && !isRoomWide(in) {
		return
	}

	if !s.apply(in) {
		return
	}
	s.publish(Event{Kind: EventMessage, Message: in})
}

// apply reports false when the message must not be published now.
func (s *Session) apply(in domain.Inbound) bool {
	switch m := in.(type) {
	case *domain.Joined:
		s.mu.Lock()
		s.isHousemaster = m.IsHousemaster
		if m.Mode.Valid() {
			s.mode = m.Mode
		}
		s.rooms = m.Rooms
		s.mu.Unlock()
		if m.Lifetime > 0 {
			s.peers.SetGlobalLifetime(time.Duration(m.Lifetime) * time.Millisecond)
		}
		s.log.Info("joined room", slog.Bool("housemaster", m.IsHousemaster))
	case *domain.Rooms:
		s.mu.Lock()
		s.rooms = m.Rooms
		s.mu.Unlock()
	case *domain.RemoteDrawPoints:
		s.peers.Upsert(m.SessionID, m.UserName, nil)
		s.peers.Ingest(m.SessionID, m.Points)
	case *domain.RemoteCursor:
		s.cursors.Update(m.SessionID, m.UserName, m.X, m.Y)
		s.peers.Touch(m.SessionID)
	case *domain.RemoteSettings:
		settings := m.Settings
		s.peers.Upsert(m.SessionID, m.UserName, &settings)
	case *domain.RemoteStrokeStart:
		s.peers.Upsert(m.SessionID, m.UserName, nil)
	case *domain.RemoteStrokeEnd:
		s.peers.Upsert(m.SessionID, m.UserName, nil)
	case *domain.UserColorChange:
		color := m.Color
		s.peers.Upsert(m.SessionID, m.UserName, &domain.Settings{Color: &color})
	case *domain.ModeChange:
		if m.Mode.Valid() {
			s.mu.Lock()
			s.mode = m.Mode
			s.mu.Unlock()
		}
	case *domain.RoomLifetimeChange:
		if m.Lifetime > 0 {
			s.peers.SetGlobalLifetime(time.Duration(m.Lifetime) * time.Millisecond)
		}
	case *domain.TafelSync:
		s.mu.Lock()
		s.strokes.ImportAll(m.Strokes)
		pending := s.pendingTafel
		s.pendingTafel = nil
		s.syncPending = false
		s.mu.Unlock()
		s.log.Info("board synced", slog.Int("strokes", len(m.Strokes)), slog.Int("replayed", len(pending)))
		s.publish(Event{Kind: EventMessage, Message: in})
		for _, p := range pending {
			s.applyTafel(p)
			s.publish(Event{Kind: EventMessage, Message: p})
		}
		return false
	case *domain.TafelStroke, *domain.TafelDrawing, *domain.TafelErase, *domain.TafelClear, *domain.TafelClearMine:
		s.mu.Lock()
		if s.syncPending {
			s.pendingTafel = append(s.pendingTafel, in)
			s.mu.Unlock()
			return false
		}
		s.mu.Unlock()
		s.applyTafel(in)
	case *domain.ServerError:
		s.log.Warn("relay reported an error", slog.String("message", m.Message))
	}
	return true
}

func (s *Session) applyTafel(in domain.Inbound) {
	switch m := in.(type) {
	case *domain.TafelStroke:
		s.strokes.Add(m.Stroke)
	case *domain.TafelDrawing:
		s.strokes.AppendPoints(m.StrokeID, m.Points)
	case *domain.TafelErase:
		s.strokes.DeleteMany(m.StrokeIDs)
	case *domain.TafelClear:
		s.strokes.ClearAll()
	case *domain.TafelClearMine:
		s.strokes.ClearOwner(m.SessionID)
	}
}

func originOf(in domain.Inbound) (domain.Origin, bool) {
	switch m := in.(type) {
	case *domain.RemoteDrawPoints:
		return m.Origin, true
	case *domain.RemoteCursor:
		return m.Origin, true
	case *domain.RemoteSettings:
		return m.Origin, true
	case *domain.RemoteStrokeStart:
		return m.Origin, true
	case *domain.RemoteStrokeEnd:
		return m.Origin, true
	case *domain.ModeChange:
		return m.Origin, true
	case *domain.RoomLifetimeChange:
		return m.Origin, true
	case *domain.TafelStroke:
		return m.Origin, true
	case *domain.TafelDrawing:
		return m.Origin, true
	case *domain.TafelErase:
		return m.Origin, true
	case *domain.TafelClear:
		return m.Origin, true
	case *domain.TafelClearMine:
		return m.Origin, true
	case *domain.UserColorChange:
		return m.Origin, true
	}
	return domain.Origin{}, false
}

func isRoomWide(in domain.Inbound) bool {
	switch in.(type) {
	case *domain.ModeChange, *domain.RoomLifetimeChange:
		return true
	}
	return false
}
