package client

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/immxrtalbeast/trailboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionIDOf(t *testing.T, msg domain.Message) string {
	t.Helper()

	var data struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	return data.SessionID
}

func TestSessionJoinIsResentOnEveryConnect(t *testing.T) {
	t.Parallel()

	s, dialer, clock := newTestSession(t, 0)
	require.NoError(t, s.Join("demo", "main", "Ada", "#ff0000"))
	assert.Equal(t, StateDisconnected, s.State())

	first := connect(t, s, dialer)
	require.Eventually(t, func() bool { return len(first.Written()) == 1 }, waitFor, tick)
	msg := first.Written()[0]
	assert.Equal(t, domain.TypeJoin, msg.Type)
	assert.Equal(t, s.SessionID(), sessionIDOf(t, msg))

	first.Close()
	require.Eventually(t, func() bool { return s.State() == StateDisconnected }, waitFor, tick)

	clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return s.State() == StateConnected }, waitFor, tick)

	second := dialer.Last()
	require.NotSame(t, first, second)
	require.Eventually(t, func() bool { return len(second.Written()) == 1 }, waitFor, tick)
	rejoin := second.Written()[0]
	assert.Equal(t, domain.TypeJoin, rejoin.Type)
	assert.Equal(t, s.SessionID(), sessionIDOf(t, rejoin))
}

func TestSessionRetriesAfterReconnectDelay(t *testing.T) {
	t.Parallel()

	s, dialer, clock := newTestSession(t, 1)

	err := s.Connect(context.Background())
	assert.ErrorIs(t, err, errFakeDial)
	assert.Equal(t, StateDisconnected, s.State())

	clock.Advance(1999 * time.Millisecond)
	assert.Equal(t, 1, dialer.Dials())

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return s.State() == StateConnected }, waitFor, tick)
	assert.Equal(t, 2, dialer.Dials())
}

func TestSessionSchedulesOneReconnectAtATime(t *testing.T) {
	t.Parallel()

	s, dialer, clock := newTestSession(t, 1)
	require.Error(t, s.Connect(context.Background()))

	// a second failure while the timer is pending does not add another one
	dialer.mu.Lock()
	dialer.fail = 1
	dialer.mu.Unlock()
	require.Error(t, s.Connect(context.Background()))

	clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return s.State() == StateConnected }, waitFor, tick)
	assert.Equal(t, 3, dialer.Dials())
}

func TestSessionDisconnectCancelsReconnect(t *testing.T) {
	t.Parallel()

	s, dialer, clock := newTestSession(t, 1)
	require.Error(t, s.Connect(context.Background()))

	s.Disconnect()
	clock.Advance(10 * time.Second)

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, dialer.Dials())
	assert.ErrorIs(t, s.Connect(context.Background()), ErrClosed)
}

func TestSessionDisconnectClosesConnection(t *testing.T) {
	t.Parallel()

	s, dialer, clock := newTestSession(t, 0)
	conn := connect(t, s, dialer)

	s.Disconnect()
	clock.Advance(10 * time.Second)

	_, _, err := conn.ReadMessage()
	assert.ErrorIs(t, err, errFakeClosed)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, dialer.Dials())
}

func TestSessionSendRequiresConnection(t *testing.T) {
	t.Parallel()

	s, dialer, _ := newTestSession(t, 0)
	assert.ErrorIs(t, s.SendCursor(1, 2), ErrNotConnected)

	conn := connect(t, s, dialer)
	require.NoError(t, s.SendPoints([]domain.Mark{{X: 1, Y: 2, Timestamp: 5}}))
	require.NoError(t, s.SendTafelErase([]string{"a", "b"}))

	written := conn.Written()
	require.Len(t, written, 2)
	assert.Equal(t, domain.TypeDrawPoints, written[0].Type)
	assert.Equal(t, s.SessionID(), sessionIDOf(t, written[0]))
	assert.JSONEq(t, `{"strokeIds":["a","b"],"sessionId":"`+s.SessionID()+`"}`, string(written[1].Data))

	assert.Error(t, s.SendModeChange("chalk"))
	assert.Error(t, s.SendLifetime(0))
}

func TestSessionPublishesStateChanges(t *testing.T) {
	t.Parallel()

	s, dialer, _ := newTestSession(t, 0)
	connect(t, s, dialer)

	var states []State
	for len(states) < 2 {
		select {
		case ev := <-s.Events():
			if ev.Kind == EventState {
				states = append(states, ev.State)
			}
		case <-time.After(waitFor):
			t.Fatal("no state event")
		}
	}
	assert.Equal(t, []State{StateConnecting, StateConnected}, states)
}

func TestSessionAppliesRemoteState(t *testing.T) {
	t.Parallel()

	s, dialer, clock := newTestSession(t, 0)
	conn := connect(t, s, dialer)

	origin := domain.Origin{SessionID: "peer", UserName: "Bob"}
	now := clock.Now().UnixMilli()
	color := "#00ff00"
	conn.push(t, &domain.RemoteSettings{Origin: origin, Settings: domain.Settings{Color: &color}})
	conn.push(t, &domain.RemoteDrawPoints{Origin: origin, Points: []domain.Mark{{X: 1, Y: 1, Timestamp: now, StrokeID: 1}}})
	conn.push(t, &domain.RemoteCursor{Origin: origin, X: 7, Y: 8})

	require.Eventually(t, func() bool { return s.Cursors().Count() == 1 }, waitFor, tick)

	snap := s.Peers().Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "Bob", snap[0].DisplayName)
	assert.Equal(t, "#00ff00", *snap[0].Settings.Color)
	assert.Len(t, snap[0].Marks, 1)

	cursors := s.Cursors().ActiveSnapshot()
	assert.Equal(t, 7.0, cursors[0].X)
}

func TestSessionIgnoresOwnEcho(t *testing.T) {
	t.Parallel()

	s, dialer, clock := newTestSession(t, 0)
	conn := connect(t, s, dialer)
	now := clock.Now().UnixMilli()

	conn.push(t, &domain.RemoteDrawPoints{
		Origin: domain.Origin{SessionID: s.SessionID()},
		Points: []domain.Mark{{Timestamp: now}},
	})
	conn.push(t, &domain.RemoteDrawPoints{
		Origin: domain.Origin{SessionID: "other"},
		Points: []domain.Mark{{Timestamp: now}},
	})

	require.Eventually(t, func() bool { return s.Peers().Len() == 1 }, waitFor, tick)
	_, ok := s.Peers().Peer(s.SessionID())
	assert.False(t, ok)
}

func TestSessionAppliesRoomWideChangesFromEcho(t *testing.T) {
	t.Parallel()

	s, dialer, _ := newTestSession(t, 0)
	conn := connect(t, s, dialer)

	conn.push(t, &domain.Joined{SessionID: s.SessionID(), IsHousemaster: true, Mode: domain.ModeTrail, Lifetime: 3000,
		Rooms: []domain.RoomSummary{{Name: "main", Users: 1}}})
	conn.push(t, &domain.ModeChange{Origin: domain.Origin{SessionID: s.SessionID()}, Mode: domain.ModeTafel})

	require.Eventually(t, func() bool { return s.Mode() == domain.ModeTafel }, waitFor, tick)
	assert.True(t, s.IsHousemaster())
	assert.Equal(t, 3*time.Second, s.Peers().Lifetime())
	assert.Equal(t, []domain.RoomSummary{{Name: "main", Users: 1}}, s.Rooms())

	conn.push(t, &domain.RoomLifetimeChange{Origin: domain.Origin{SessionID: "other"}, Lifetime: 9000})
	require.Eventually(t, func() bool { return s.Peers().Lifetime() == 9*time.Second }, waitFor, tick)
}

func TestSessionBuffersTafelUntilSync(t *testing.T) {
	t.Parallel()

	s, dialer, _ := newTestSession(t, 0)
	require.NoError(t, s.Join("demo", "main", "Ada", ""))
	conn := connect(t, s, dialer)

	live := domain.Stroke{StrokeID: "live", OwnerID: "bob", Points: []domain.StrokePoint{{X: 1}}, CreatedAt: 2}
	conn.push(t, &domain.TafelStroke{Origin: domain.Origin{SessionID: "bob"}, Stroke: live})
	conn.push(t, &domain.TafelSync{Strokes: []domain.Stroke{
		{StrokeID: "old", OwnerID: "carol", Points: []domain.StrokePoint{{X: 5}}, CreatedAt: 1},
	}})

	require.Eventually(t, func() bool { return s.Strokes().Len() == 2 }, waitFor, tick)
	ids := []string{}
	for _, st := range s.Strokes().ExportAll() {
		ids = append(ids, st.StrokeID)
	}
	assert.Equal(t, []string{"old", "live"}, ids)

	// after the sync live edits apply directly
	conn.push(t, &domain.TafelClearMine{Origin: domain.Origin{SessionID: "carol"}})
	require.Eventually(t, func() bool { return s.Strokes().Len() == 1 }, waitFor, tick)
}

func TestSessionAppliesTafelEdits(t *testing.T) {
	t.Parallel()

	s, dialer, _ := newTestSession(t, 0)
	conn := connect(t, s, dialer)
	bob := domain.Origin{SessionID: "bob"}

	conn.push(t, &domain.TafelStroke{Origin: bob, Stroke: domain.Stroke{StrokeID: "b1", OwnerID: "bob", Points: []domain.StrokePoint{{X: 1}}}})
	conn.push(t, &domain.TafelDrawing{Origin: bob, StrokeID: "b1", Points: []domain.StrokePoint{{X: 2}}})
	require.Eventually(t, func() bool {
		st, ok := s.Strokes().Get("b1")
		return ok && len(st.Points) == 2
	}, waitFor, tick)

	conn.push(t, &domain.TafelErase{Origin: bob, StrokeIDs: []string{"b1"}})
	require.Eventually(t, func() bool { return s.Strokes().Len() == 0 }, waitFor, tick)

	conn.push(t, &domain.TafelStroke{Origin: bob, Stroke: domain.Stroke{StrokeID: "b2", OwnerID: "bob"}})
	conn.push(t, &domain.TafelClear{Origin: bob})
	conn.push(t, &domain.TafelStroke{Origin: bob, Stroke: domain.Stroke{StrokeID: "b3", OwnerID: "bob"}})
	require.Eventually(t, func() bool {
		_, ok := s.Strokes().Get("b3")
		return ok && s.Strokes().Len() == 1
	}, waitFor, tick)
}

func TestSessionSkipsUnknownAndMalformedMessages(t *testing.T) {
	t.Parallel()

	s, dialer, clock := newTestSession(t, 0)
	conn := connect(t, s, dialer)

	conn.pushRaw(`not json`)
	conn.pushRaw(`{"type":"teleport","data":{}}`)
	conn.pushRaw(`{"type":"remoteCursor","data":{"x":"far"}}`)
	conn.push(t, &domain.RemoteDrawPoints{
		Origin: domain.Origin{SessionID: "peer"},
		Points: []domain.Mark{{Timestamp: clock.Now().UnixMilli()}},
	})

	require.Eventually(t, func() bool { return s.Peers().Len() == 1 }, waitFor, tick)
	assert.Equal(t, StateConnected, s.State())
	assert.Zero(t, s.Cursors().Count())
}

func TestSessionSweepReapsInactivePeers(t *testing.T) {
	t.Parallel()

	s, dialer, clock := newTestSession(t, 0)
	conn := connect(t, s, dialer)

	origin := domain.Origin{SessionID: "peer", UserName: "Bob"}
	conn.push(t, &domain.RemoteDrawPoints{Origin: origin, Points: []domain.Mark{{Timestamp: clock.Now().UnixMilli()}}})
	conn.push(t, &domain.RemoteCursor{Origin: origin, X: 1, Y: 1})
	require.Eventually(t, func() bool { return s.Cursors().Count() == 1 }, waitFor, tick)

	clock.Advance(29 * time.Second)
	s.Sweep()
	assert.Equal(t, 1, s.Peers().Len())
	assert.Empty(t, s.Peers().Snapshot())

	clock.Advance(2 * time.Second)
	s.Sweep()
	assert.Zero(t, s.Peers().Len())
	assert.Zero(t, s.Cursors().Count())
}

func TestSessionRunStopsWithContext(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestSession(t, 0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
}

func TestSessionJoinSwitchesRoomOnLiveConnection(t *testing.T) {
	t.Parallel()

	s, dialer, clock := newTestSession(t, 0)
	require.NoError(t, s.Join("demo", "lobby", "Ada", ""))
	lobby := connect(t, s, dialer)

	carol := domain.Origin{SessionID: "carol", UserName: "Carol"}
	lobby.push(t, &domain.TafelSync{Strokes: []domain.Stroke{{StrokeID: "l1", OwnerID: "carol"}}})
	lobby.push(t, &domain.RemoteDrawPoints{Origin: carol, Points: []domain.Mark{{Timestamp: clock.Now().UnixMilli()}}})
	lobby.push(t, &domain.RemoteCursor{Origin: carol, X: 1, Y: 1})
	require.Eventually(t, func() bool {
		return s.Strokes().Len() == 1 && s.Peers().Len() == 1 && s.Cursors().Count() == 1
	}, waitFor, tick)

	require.NoError(t, s.Join("demo", "main", "Ada", ""))

	assert.Equal(t, StateConnected, s.State())
	assert.Equal(t, 2, dialer.Dials())
	_, _, err := lobby.ReadMessage()
	assert.ErrorIs(t, err, errFakeClosed)

	assert.Zero(t, s.Strokes().Len())
	assert.Zero(t, s.Peers().Len())
	assert.Zero(t, s.Cursors().Count())

	next := dialer.Last()
	require.NotSame(t, lobby, next)
	require.Eventually(t, func() bool { return len(next.Written()) == 1 }, waitFor, tick)
	var join domain.Join
	require.NoError(t, json.Unmarshal(next.Written()[0].Data, &join))
	assert.Equal(t, "main", join.RoomName)
	assert.Equal(t, s.SessionID(), join.SessionID)

	// the new room's sync clears the pending state and live edits apply again
	bob := domain.Origin{SessionID: "bob", UserName: "Bob"}
	next.push(t, &domain.TafelSync{})
	next.push(t, &domain.TafelStroke{Origin: bob, Stroke: domain.Stroke{StrokeID: "m1", OwnerID: "bob"}})
	require.Eventually(t, func() bool {
		_, ok := s.Strokes().Get("m1")
		return ok
	}, waitFor, tick)
	assert.Equal(t, 1, s.Strokes().Len())

	// no reconnect is scheduled for the replaced socket
	clock.Advance(5 * time.Second)
	assert.Equal(t, 2, dialer.Dials())
}

func TestSessionRejoinSameRoomKeepsStores(t *testing.T) {
	t.Parallel()

	s, dialer, _ := newTestSession(t, 0)
	require.NoError(t, s.Join("demo", "main", "Ada", ""))
	conn := connect(t, s, dialer)
	conn.push(t, &domain.TafelSync{Strokes: []domain.Stroke{{StrokeID: "s1", OwnerID: "bob"}}})
	require.Eventually(t, func() bool { return s.Strokes().Len() == 1 }, waitFor, tick)

	require.NoError(t, s.Join("DEMO", "main", "Ada Lovelace", ""))
	assert.Equal(t, 1, s.Strokes().Len())
	assert.Equal(t, "Ada Lovelace", s.DisplayName())
}

func TestSessionJoinValidates(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestSession(t, 0)
	assert.ErrorIs(t, s.Join(" ", "main", "Ada", ""), ErrInvalidJoin)
	assert.ErrorIs(t, s.Join("demo", "", "Ada", ""), ErrInvalidJoin)

	s.Disconnect()
	assert.ErrorIs(t, s.Join("demo", "main", "Ada", ""), ErrClosed)
}
