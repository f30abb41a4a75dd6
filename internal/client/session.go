package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/trailboard/internal/domain"
	"github.com/immxrtalbeast/trailboard/internal/repository"
	"github.com/immxrtalbeast/trailboard/internal/service"
	"github.com/immxrtalbeast/trailboard/lib/logger/sl"
	"github.com/jonboulle/clockwork"
)

var (
	ErrNotConnected   = errors.New("not connected")
	ErrClosed         = errors.New("session closed")
	ErrNotHousemaster = errors.New("only the housemaster can do that")
	ErrInvalidJoin    = errors.New("house code and room name are required")
)

const (
	DefaultReconnectDelay  = 2 * time.Second
	DefaultCleanupInterval = time.Second
	eventQueueSize         = 256
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Config struct {
	ServerURL       string
	ReconnectDelay  time.Duration
	PeerInactivity  time.Duration
	CleanupInterval time.Duration
}

// Stores receive the state carried by inbound messages. Nil fields are
// created by NewSession.
type Stores struct {
	Peers   *service.PeerRegistry
	Strokes repository.StrokeRepository
	Cursors *service.CursorTracker
}

// Session keeps one client's connection to the relay alive and feeds the
// local stores from what arrives on it. The session id is chosen once and
// survives reconnects.
type Session struct {
	cfg    Config
	log    *slog.Logger
	clock  clockwork.Clock
	dialer Dialer

	peers   *service.PeerRegistry
	strokes repository.StrokeRepository
	cursors *service.CursorTracker

	sessionID string
	events    chan Event

	mu            sync.Mutex
	state         State
	conn          Conn
	reconnect     clockwork.Timer
	join          *domain.Join
	isHousemaster bool
	mode          domain.BoardMode
	rooms         []domain.RoomSummary
	syncPending   bool
	pendingTafel  []domain.Inbound

	writeMu sync.Mutex
}

func NewSession(cfg Config, log *slog.Logger, clock clockwork.Clock, dialer Dialer, stores Stores) *Session {
	if log == nil {
		log = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.PeerInactivity <= 0 {
		cfg.PeerInactivity = service.DefaultPeerInactivity
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if stores.Peers == nil {
		stores.Peers = service.NewPeerRegistry(log, clock, domain.DefaultTrailLifetime)
	}
	if stores.Strokes == nil {
		stores.Strokes = repository.NewInMemoryStrokeRepository()
	}
	if stores.Cursors == nil {
		stores.Cursors = service.NewCursorTracker(clock, domain.DefaultCursorStaleness)
	}

	sessionID := uuid.NewString()
	return &Session{
		cfg:       cfg,
		log:       log.With(slog.String("session_id", sessionID)),
		clock:     clock,
		dialer:    dialer,
		peers:     stores.Peers,
		strokes:   stores.Strokes,
		cursors:   stores.Cursors,
		sessionID: sessionID,
		events:    make(chan Event, eventQueueSize),
		state:     StateDisconnected,
		mode:      domain.ModeTrail,
	}
}

func (s *Session) SessionID() string { return s.sessionID }

// Events delivers state changes and applied messages. The channel is never
// closed; events are dropped while it is full.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) Peers() *service.PeerRegistry        { return s.peers }
func (s *Session) Strokes() repository.StrokeRepository { return s.strokes }
func (s *Session) Cursors() *service.CursorTracker      { return s.cursors }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DisplayName is the name of the last join, empty before any join.
func (s *Session) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.join == nil {
		return ""
	}
	return s.join.UserName
}

func (s *Session) IsHousemaster() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isHousemaster
}

func (s *Session) Mode() domain.BoardMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Session) Rooms() []domain.RoomSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RoomSummary(nil), s.rooms...)
}

// Connect dials the relay. A failed dial schedules a reconnect and returns
// the dial error. Connecting an already live session is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	const op = "client.session.connect"
	log := s.log.With(slog.String("op", op))

	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	case StateConnecting, StateConnected:
		s.mu.Unlock()
		return nil
	}
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	conn, err := s.dialer.Dial(ctx, s.cfg.ServerURL)

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrClosed
	}
	if err != nil {
		s.setStateLocked(StateDisconnected)
		s.scheduleReconnectLocked()
		s.mu.Unlock()
		log.Warn("dial failed", slog.String("url", s.cfg.ServerURL), sl.Err(err))
		return err
	}
	s.conn = conn
	s.setStateLocked(StateConnected)
	join := s.join
	if join != nil {
		s.syncPending = true
		s.pendingTafel = nil
	}
	s.mu.Unlock()

	log.Info("connected", slog.String("url", s.cfg.ServerURL))

	if join != nil {
		if err := s.send(join); err != nil {
			log.Warn("failed to re-send join", sl.Err(err))
		}
	}

	go s.readLoop(conn)
	return nil
}

// Disconnect closes the session for good and cancels a pending reconnect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	conn := s.conn
	s.conn = nil
	s.setStateLocked(StateClosed)
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	s.log.Info("session closed")
}

// Join enters a room and remembers it so every reconnect joins it again.
// While disconnected the join is only remembered. On a live connection the
// socket is replaced, because the relay accepts join only as the first
// frame. Moving to another room clears the local stores.
func (s *Session) Join(houseCode, roomName, displayName, color string) error {
	if strings.TrimSpace(houseCode) == "" || strings.TrimSpace(roomName) == "" {
		return ErrInvalidJoin
	}
	join := &domain.Join{
		HouseCode: houseCode,
		RoomName:  roomName,
		UserName:  displayName,
		Color:     color,
		SessionID: s.sessionID,
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	moved := s.join == nil || domain.RoomKey(s.join.HouseCode, s.join.RoomName) != domain.RoomKey(houseCode, roomName)
	s.join = join
	conn := s.conn
	live := s.state == StateConnected && conn != nil
	if live {
		s.conn = nil
		s.syncPending = false
		s.pendingTafel = nil
		s.setStateLocked(StateDisconnected)
	}
	if moved {
		s.isHousemaster = false
		s.rooms = nil
	}
	s.mu.Unlock()

	if moved {
		s.peers.Clear()
		s.strokes.ClearAll()
		s.cursors.Clear()
	}

	if !live {
		s.log.Info("join deferred until connected", slog.String("house", houseCode), slog.String("room", roomName))
		return nil
	}

	_ = conn.Close()
	s.log.Info("switching room", slog.String("house", houseCode), slog.String("room", roomName))
	return s.Connect(context.Background())
}

// Run sweeps expired marks, inactive peers and stale cursors until ctx is
// done.
func (s *Session) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			s.Sweep()
		}
	}
}

func (s *Session) Sweep() {
	s.peers.Cleanup()
	for _, id := range s.peers.ReapInactive(s.cfg.PeerInactivity) {
		s.cursors.Remove(id)
	}
	s.cursors.Count()
}

func (s *Session) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(conn, err)
			return
		}
		if !s.isCurrent(conn) {
			return
		}
		s.dispatch(data)
	}
}

func (s *Session) isCurrent(conn Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn == conn
}

func (s *Session) handleDisconnect(conn Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	_ = conn.Close()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.setStateLocked(StateDisconnected)
	s.scheduleReconnectLocked()
	s.mu.Unlock()

	s.log.Warn("connection lost", slog.Duration("retry_in", s.cfg.ReconnectDelay), sl.Err(err))
}

// scheduleReconnectLocked arms the reconnect timer unless one is pending.
func (s *Session) scheduleReconnectLocked() {
	if s.reconnect != nil {
		return
	}
	s.reconnect = s.clock.AfterFunc(s.cfg.ReconnectDelay, func() {
		s.mu.Lock()
		s.reconnect = nil
		s.mu.Unlock()
		_ = s.Connect(context.Background())
	})
}

func (s *Session) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.state = state
	s.publish(Event{Kind: EventState, State: state})
}

func (s *Session) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.Debug("dropping event", slog.String("kind", ev.Kind.String()))
	}
}
