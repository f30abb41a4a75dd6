package client

import (
	"fmt"
	"log/slog"

	"github.com/immxrtalbeast/trailboard/internal/domain"
	"github.com/immxrtalbeast/trailboard/lib/logger/sl"
)

// send encodes payload, stamps it with the session id and writes it.
// Nothing is queued while disconnected.
func (s *Session) send(payload domain.Outbound) error {
	const op = "client.session.send"

	s.mu.Lock()
	conn := s.conn
	connected := s.state == StateConnected
	s.mu.Unlock()

	if !connected || conn == nil {
		s.log.Warn("cannot send while disconnected", slog.String("op", op), slog.String("type", string(payload.Type())))
		return ErrNotConnected
	}

	msg, err := domain.Encode(payload)
	if err != nil {
		return err
	}
	msg, err = msg.WithSession(s.sessionID)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Warn("write failed", slog.String("op", op), slog.String("type", string(msg.Type)), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Session) SendPoints(marks []domain.Mark) error {
	return s.send(&domain.DrawPoints{Points: marks})
}

func (s *Session) SendStrokeStart(strokeID int, timestamp int64) error {
	return s.send(&domain.StrokeStart{StrokeID: strokeID, Timestamp: timestamp})
}

func (s *Session) SendStrokeEnd(strokeID int) error {
	return s.send(&domain.StrokeEnd{StrokeID: strokeID})
}

func (s *Session) SendCursor(x, y float64) error {
	return s.send(&domain.CursorMove{X: x, Y: y, Timestamp: s.clock.Now().UnixMilli()})
}

func (s *Session) SendSettings(settings domain.Settings) error {
	return s.send(&domain.SettingsUpdate{Settings: settings})
}

// SendModeChange asks the relay to switch the room mode. The local mode
// follows once the relay broadcasts the change; only the housemaster's
// request is accepted.
func (s *Session) SendModeChange(mode domain.BoardMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid mode %q", mode)
	}
	return s.send(&domain.ModeChange{Mode: mode})
}

func (s *Session) SendLifetime(lifetimeMs int64) error {
	if lifetimeMs <= 0 {
		return fmt.Errorf("invalid lifetime %d", lifetimeMs)
	}
	return s.send(&domain.RoomLifetimeChange{Lifetime: lifetimeMs})
}

func (s *Session) SendTafelStroke(stroke domain.Stroke) error {
	return s.send(&domain.TafelStroke{Stroke: stroke})
}

func (s *Session) SendTafelDrawing(strokeID string, points []domain.StrokePoint) error {
	return s.send(&domain.TafelDrawing{StrokeID: strokeID, Points: points})
}

func (s *Session) SendTafelErase(strokeIDs []string) error {
	return s.send(&domain.TafelErase{StrokeIDs: strokeIDs})
}

func (s *Session) SendTafelClear() error {
	return s.send(&domain.TafelClear{})
}

func (s *Session) SendTafelClearMine() error {
	return s.send(&domain.TafelClearMine{})
}

func (s *Session) SendUserColor(color string) error {
	return s.send(&domain.UserColorChange{Color: color})
}
