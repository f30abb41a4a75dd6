package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/trailboard/internal/domain"
	"github.com/immxrtalbeast/trailboard/lib/logger/handlers/slogdiscard"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

var (
	errFakeClosed = errors.New("fake connection closed")
	errFakeDial   = errors.New("relay unreachable")
)

type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written []domain.Message
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case frame := <-c.frames:
		return websocket.TextMessage, frame, nil
	case <-c.closed:
		return 0, nil, errFakeClosed
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return errFakeClosed
	default:
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) Written() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Message(nil), c.written...)
}

func (c *fakeConn) push(t *testing.T, payload interface{ Type() domain.MessageType }) {
	t.Helper()

	msg, err := domain.Encode(payload)
	require.NoError(t, err)
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	c.frames <- data
}

func (c *fakeConn) pushRaw(frame string) {
	c.frames <- []byte(frame)
}

type fakeDialer struct {
	mu    sync.Mutex
	fail  int
	dials int
	conns []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, _ string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if d.fail > 0 {
		d.fail--
		return nil, errFakeDial
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) Last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func newTestSession(t *testing.T, failures int) (*Session, *fakeDialer, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	dialer := &fakeDialer{fail: failures}
	s := NewSession(Config{ServerURL: "ws://relay.test/ws"}, slogdiscard.NewDiscardLogger(), clock, dialer, Stores{})
	t.Cleanup(s.Disconnect)
	return s, dialer, clock
}

func connect(t *testing.T, s *Session, d *fakeDialer) *fakeConn {
	t.Helper()

	require.NoError(t, s.Connect(context.Background()))
	conn := d.Last()
	require.NotNil(t, conn)
	return conn
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
