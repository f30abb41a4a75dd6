package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/immxrtalbeast/trailboard/internal/domain"
	"github.com/immxrtalbeast/trailboard/internal/repository"
	"github.com/immxrtalbeast/trailboard/lib/logger/handlers/slogdiscard"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoomService() *RoomService {
	return NewRoomService(
		repository.NewInMemoryRoomRepository(),
		slogdiscard.NewDiscardLogger(),
		clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)),
		0,
	)
}

// drain decodes every event queued for p.
func drain(t *testing.T, p *domain.Participant) []domain.Inbound {
	t.Helper()

	result := make([]domain.Inbound, 0)
	for {
		select {
		case msg := <-p.Events:
			decoded, err := domain.DecodeInbound(msg)
			require.NoError(t, err)
			result = append(result, decoded)
		default:
			return result
		}
	}
}

func join(t *testing.T, svc *RoomService, session, name string) (*domain.Participant, *domain.Room) {
	t.Helper()

	p, room, err := svc.Join(context.Background(), domain.Join{
		HouseCode: "demo",
		RoomName:  "main",
		UserName:  name,
		SessionID: session,
	})
	require.NoError(t, err)
	return p, room
}

func send(t *testing.T, payload interface{ Type() domain.MessageType }) domain.Message {
	t.Helper()

	msg, err := domain.Encode(payload)
	require.NoError(t, err)
	return msg
}

func TestRoomServiceJoinReplies(t *testing.T) {
	t.Parallel()

	svc := newTestRoomService()
	alice, room := join(t, svc, "alice", "Alice")

	events := drain(t, alice)
	require.Len(t, events, 3)

	joined, ok := events[0].(*domain.Joined)
	require.True(t, ok)
	assert.True(t, joined.IsHousemaster)
	assert.Equal(t, "alice", joined.SessionID)
	assert.Equal(t, domain.ModeTrail, joined.Mode)
	assert.Equal(t, int64(7500), joined.Lifetime)
	assert.Equal(t, []domain.RoomSummary{{Name: "main", Users: 1}}, joined.Rooms)

	sync, ok := events[1].(*domain.TafelSync)
	require.True(t, ok)
	assert.Empty(t, sync.Strokes)

	assert.IsType(t, &domain.Rooms{}, events[2])
	assert.Equal(t, "DEMO", room.HouseCode)

	bob, _ := join(t, svc, "bob", "Bob")
	events = drain(t, bob)
	require.NotEmpty(t, events)
	assert.False(t, events[0].(*domain.Joined).IsHousemaster)

	events = drain(t, alice)
	require.Len(t, events, 1)
	rooms := events[0].(*domain.Rooms)
	assert.Equal(t, []domain.RoomSummary{{Name: "main", Users: 2}}, rooms.Rooms)
}

func TestRoomServiceJoinValidates(t *testing.T) {
	t.Parallel()

	svc := newTestRoomService()
	_, _, err := svc.Join(context.Background(), domain.Join{HouseCode: " ", RoomName: "main"})
	assert.ErrorIs(t, err, ErrInvalidJoin)
}

func TestRoomServiceRelaysTrailMessages(t *testing.T) {
	t.Parallel()

	svc := newTestRoomService()
	alice, room := join(t, svc, "alice", "Alice")
	bob, _ := join(t, svc, "bob", "Bob")
	drain(t, alice)
	drain(t, bob)

	ctx := context.Background()
	points := []domain.Mark{{X: 1, Y: 2, Timestamp: 10, StrokeID: 1, Kind: domain.MarkDraw}}
	require.NoError(t, svc.HandleMessage(ctx, room.ID, "alice", send(t, &domain.DrawPoints{Points: points})))
	require.NoError(t, svc.HandleMessage(ctx, room.ID, "alice", send(t, &domain.CursorMove{X: 5, Y: 6})))

	assert.Empty(t, drain(t, alice))

	events := drain(t, bob)
	require.Len(t, events, 2)
	remote := events[0].(*domain.RemoteDrawPoints)
	assert.Equal(t, "alice", remote.SessionID)
	assert.Equal(t, "Alice", remote.UserName)
	assert.Equal(t, points, remote.Points)

	cursor := events[1].(*domain.RemoteCursor)
	assert.Equal(t, 5.0, cursor.X)
	assert.Equal(t, "alice", cursor.SessionID)
}

func TestRoomServiceHousemasterOnlyChanges(t *testing.T) {
	t.Parallel()

	svc := newTestRoomService()
	alice, room := join(t, svc, "alice", "Alice")
	bob, _ := join(t, svc, "bob", "Bob")
	drain(t, alice)
	drain(t, bob)

	ctx := context.Background()
	err := svc.HandleMessage(ctx, room.ID, "bob", send(t, &domain.ModeChange{Mode: domain.ModeTafel}))
	assert.ErrorIs(t, err, ErrNotHousemaster)

	err = svc.HandleMessage(ctx, room.ID, "alice", send(t, &domain.ModeChange{Mode: "chalk"}))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	require.NoError(t, svc.HandleMessage(ctx, room.ID, "alice", send(t, &domain.ModeChange{Mode: domain.ModeTafel})))
	require.NoError(t, svc.HandleMessage(ctx, room.ID, "alice", send(t, &domain.RoomLifetimeChange{Lifetime: 3000})))

	assert.Equal(t, domain.ModeTafel, room.Mode)
	assert.Equal(t, 3*time.Second, room.Lifetime)

	// broadcast to everyone, sender included
	for _, p := range []*domain.Participant{alice, bob} {
		events := drain(t, p)
		require.Len(t, events, 2)
		assert.Equal(t, domain.ModeTafel, events[0].(*domain.ModeChange).Mode)
		assert.Equal(t, int64(3000), events[1].(*domain.RoomLifetimeChange).Lifetime)
	}
}

func TestRoomServiceTafelOwnership(t *testing.T) {
	t.Parallel()

	svc := newTestRoomService()
	alice, room := join(t, svc, "alice", "Alice")
	bob, _ := join(t, svc, "bob", "Bob")
	drain(t, alice)
	drain(t, bob)

	ctx := context.Background()
	stroke := domain.Stroke{
		StrokeID: "a1",
		OwnerID:  "bob",
		Tool:     domain.ToolPen,
		Points:   []domain.StrokePoint{{X: 1, Y: 1}},
	}
	require.NoError(t, svc.HandleMessage(ctx, room.ID, "alice", send(t, &domain.TafelStroke{Stroke: stroke})))
	require.NoError(t, svc.HandleMessage(ctx, room.ID, "alice",
		send(t, &domain.TafelDrawing{StrokeID: "a1", Points: []domain.StrokePoint{{X: 2, Y: 2}}})))

	// bob cannot extend, overwrite or erase alice's stroke
	require.NoError(t, svc.HandleMessage(ctx, room.ID, "bob",
		send(t, &domain.TafelDrawing{StrokeID: "a1", Points: []domain.StrokePoint{{X: 9, Y: 9}}})))
	err := svc.HandleMessage(ctx, room.ID, "bob", send(t, &domain.TafelStroke{Stroke: domain.Stroke{StrokeID: "a1"}}))
	assert.ErrorIs(t, err, ErrInvalidPayload)
	require.NoError(t, svc.HandleMessage(ctx, room.ID, "bob", send(t, &domain.TafelErase{StrokeIDs: []string{"a1"}})))

	strokes, err := svc.ExportStrokes(ctx, "demo", "main")
	require.NoError(t, err)
	require.Len(t, strokes, 1)
	assert.Equal(t, "alice", strokes[0].OwnerID)
	assert.Equal(t, "Alice", strokes[0].OwnerName)
	assert.Equal(t, []domain.StrokePoint{{X: 1, Y: 1}, {X: 2, Y: 2}}, strokes[0].Points)
	assert.NotZero(t, strokes[0].CreatedAt)

	events := drain(t, bob)
	require.Len(t, events, 2)
	assert.Equal(t, "alice", events[0].(*domain.TafelStroke).Stroke.OwnerID)
	assert.IsType(t, &domain.TafelDrawing{}, events[1])
	assert.Empty(t, drain(t, alice))

	err = svc.HandleMessage(ctx, room.ID, "bob", send(t, &domain.TafelClear{}))
	assert.ErrorIs(t, err, ErrNotHousemaster)

	require.NoError(t, svc.HandleMessage(ctx, room.ID, "alice", send(t, &domain.TafelErase{StrokeIDs: []string{"a1", "zz"}})))
	events = drain(t, bob)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"a1"}, events[0].(*domain.TafelErase).StrokeIDs)
}

func TestRoomServiceLateJoinerGetsStrokes(t *testing.T) {
	t.Parallel()

	svc := newTestRoomService()
	_, room := join(t, svc, "alice", "Alice")
	ctx := context.Background()
	require.NoError(t, svc.HandleMessage(ctx, room.ID, "alice",
		send(t, &domain.TafelStroke{Stroke: domain.Stroke{StrokeID: "s1", Points: []domain.StrokePoint{{X: 1}}}})))

	carol, _ := join(t, svc, "carol", "Carol")
	events := drain(t, carol)
	require.GreaterOrEqual(t, len(events), 2)
	sync := events[1].(*domain.TafelSync)
	require.Len(t, sync.Strokes, 1)
	assert.Equal(t, "s1", sync.Strokes[0].StrokeID)
}

func TestRoomServiceRejectsUnknownSender(t *testing.T) {
	t.Parallel()

	svc := newTestRoomService()
	_, room := join(t, svc, "alice", "Alice")
	ctx := context.Background()

	err := svc.HandleMessage(ctx, room.ID, "mallory", send(t, &domain.CursorMove{}))
	assert.ErrorIs(t, err, ErrParticipantNotFound)

	err = svc.HandleMessage(ctx, room.ID, "alice", domain.Message{Type: "teleport"})
	assert.ErrorIs(t, err, domain.ErrUnknownMessage)

	err = svc.HandleMessage(ctx, room.ID, "alice", send(t, &domain.Join{HouseCode: "x", RoomName: "y"}))
	assert.ErrorIs(t, err, ErrUnsupportedMessage)
}

func TestRoomServiceLeave(t *testing.T) {
	t.Parallel()

	svc := newTestRoomService()
	alice, room := join(t, svc, "alice", "Alice")
	bob, _ := join(t, svc, "bob", "Bob")
	drain(t, bob)
	ctx := context.Background()

	require.NoError(t, svc.Leave(ctx, room.ID, alice))
	assert.Equal(t, "bob", room.Housemaster)

	events := drain(t, bob)
	require.Len(t, events, 2)
	assert.True(t, events[0].(*domain.Joined).IsHousemaster)
	assert.Equal(t, []domain.RoomSummary{{Name: "main", Users: 1}}, events[1].(*domain.Rooms).Rooms)

	drain(t, alice)
	select {
	case <-alice.Done():
	default:
		t.Fatal("leaving participant was not closed")
	}

	require.NoError(t, svc.Leave(ctx, room.ID, bob))
	rooms, err := svc.ListRooms(ctx, "demo")
	require.NoError(t, err)
	assert.Empty(t, rooms)

	_, err = svc.ExportStrokes(ctx, "demo", "main")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRoomServiceReconnectReplacesConnection(t *testing.T) {
	t.Parallel()

	svc := newTestRoomService()
	first, room := join(t, svc, "alice", "Alice")
	second, _ := join(t, svc, "alice", "Alice")

	assert.NotSame(t, first, second)
	assert.Equal(t, "alice", room.Housemaster)

	// the stale connection leaving must not evict the new one
	err := svc.Leave(context.Background(), room.ID, first)
	assert.ErrorIs(t, err, ErrParticipantNotFound)
	assert.Equal(t, 1, room.Summary().Users)
}

func TestRoomServiceJoinRacingLastLeave(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for i := 0; i < 200; i++ {
		svc := newTestRoomService()
		alice, room := join(t, svc, "alice", "Alice")

		var (
			wg       sync.WaitGroup
			bob      *domain.Participant
			bobRoom  *domain.Room
			leaveErr error
			joinErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			leaveErr = svc.Leave(ctx, room.ID, alice)
		}()
		go func() {
			defer wg.Done()
			bob, bobRoom, joinErr = svc.Join(ctx, domain.Join{HouseCode: "demo", RoomName: "main", UserName: "Bob", SessionID: "bob"})
		}()
		wg.Wait()

		require.NoError(t, leaveErr)
		require.NoError(t, joinErr)

		// bob's room must still be registered, whichever side won
		err := svc.HandleMessage(ctx, bobRoom.ID, bob.ID, send(t, &domain.CursorMove{X: 1, Y: 1}))
		require.NoError(t, err, "iteration %d", i)

		got, err := svc.Room(ctx, "demo", "main")
		require.NoError(t, err)
		assert.Same(t, bobRoom, got)
	}
}

func TestRoomServiceRelayWhileLeaving(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		svc := newTestRoomService()
		_, room := join(t, svc, "alice", "Alice")
		bob, _ := join(t, svc, "bob", "Bob")
		move := send(t, &domain.CursorMove{X: 1, Y: 1})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = svc.HandleMessage(ctx, room.ID, "alice", move)
			}
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Leave(ctx, room.ID, bob))
		}()
		wg.Wait()

		assert.False(t, bob.EnqueueEvent(domain.NewErrorMessage("late")))
	}
}
