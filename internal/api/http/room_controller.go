package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/trailboard/internal/api/http/converter"
	"github.com/immxrtalbeast/trailboard/internal/domain"
	"github.com/immxrtalbeast/trailboard/internal/export"
	"github.com/immxrtalbeast/trailboard/internal/service"
	"github.com/immxrtalbeast/trailboard/lib/logger/sl"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

type RoomController struct {
	rooms    service.RoomInteractor
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewRoomController(rooms service.RoomInteractor, log *slog.Logger) *RoomController {
	if log == nil {
		log = slog.Default()
	}
	return &RoomController{
		rooms: rooms,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (c *RoomController) ListRooms(ctx *gin.Context) {
	house := domain.NormalizeHouseCode(ctx.Param("house"))
	rooms, err := c.rooms.ListRooms(ctx.Request.Context(), house)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"house": house, "rooms": rooms})
}

func (c *RoomController) GetRoom(ctx *gin.Context) {
	room, err := c.rooms.Room(ctx.Request.Context(), ctx.Param("house"), ctx.Param("room"))
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(room)})
}

func (c *RoomController) ExportStrokes(ctx *gin.Context) {
	strokes, err := c.rooms.ExportStrokes(ctx.Request.Context(), ctx.Param("house"), ctx.Param("room"))
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	ctx.Header("Content-Type", "application/json; charset=utf-8")
	ctx.Header("Content-Disposition", attachment(ctx, "json"))
	ctx.Status(http.StatusOK)
	if err := export.WriteJSON(ctx.Writer, strokes, time.Now()); err != nil {
		c.log.Error("failed to write export", sl.Err(err))
	}
}

func (c *RoomController) ExportPDF(ctx *gin.Context) {
	strokes, err := c.rooms.ExportStrokes(ctx.Request.Context(), ctx.Param("house"), ctx.Param("room"))
	if err != nil {
		ctx.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	opts := export.DefaultPDFOptions()
	opts.Title = domain.RoomKey(ctx.Param("house"), ctx.Param("room"))

	ctx.Header("Content-Type", "application/pdf")
	ctx.Header("Content-Disposition", attachment(ctx, "pdf"))
	ctx.Status(http.StatusOK)
	if err := export.WritePDF(ctx.Writer, strokes, opts); err != nil {
		c.log.Error("failed to write pdf", sl.Err(err))
	}
}

// Connect upgrades the request and runs the relay protocol. The first
// message must be a join; everything after it is handed to the room.
func (c *RoomController) Connect(ctx *gin.Context) {
	const op = "api.http.connect"
	log := c.log.With(slog.String("op", op), slog.String("remote", ctx.ClientIP()))

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warn("failed to upgrade connection", sl.Err(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	var first domain.Message
	if err := conn.ReadJSON(&first); err != nil {
		log.Debug("connection closed before join", sl.Err(err))
		return
	}
	if first.Type != domain.TypeJoin {
		writeError(conn, "first message must be join")
		return
	}
	payload, err := domain.DecodeOutbound(first)
	if err != nil {
		writeError(conn, err.Error())
		return
	}
	join := payload.(*domain.Join)

	participant, room, err := c.rooms.Join(context.Background(), *join)
	if err != nil {
		writeError(conn, err.Error())
		return
	}
	log = log.With(slog.String("room_id", room.ID.String()), slog.String("session_id", participant.ID))

	done := make(chan struct{})
	go func() {
		defer close(done)
		forwardParticipantEvents(participant, conn)
	}()

	for {
		var msg domain.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("connection lost", sl.Err(err))
			}
			break
		}

		if err := c.rooms.HandleMessage(context.Background(), room.ID, participant.ID, msg); err != nil {
			if errors.Is(err, service.ErrParticipantNotFound) || errors.Is(err, service.ErrRoomNotFound) {
				break
			}
			log.Debug("message rejected", slog.String("type", string(msg.Type)), sl.Err(err))
			participant.EnqueueEvent(domain.NewErrorMessage(err.Error()))
		}
	}

	if err := c.rooms.Leave(context.Background(), room.ID, participant); err != nil && !errors.Is(err, service.ErrParticipantNotFound) {
		log.Warn("leave failed", sl.Err(err))
	}
	participant.Close()
	<-done
}

// forwardParticipantEvents is the only writer of conn once the participant
// is registered. It flushes what is still queued and closes conn once the
// participant is closed, so a replaced connection's reader stops too.
func forwardParticipantEvents(participant *domain.Participant, conn *websocket.Conn) {
	defer conn.Close()
	for {
		select {
		case event := <-participant.Events:
			if err := writeEvent(conn, event); err != nil {
				return
			}
		case <-participant.Done():
			for {
				select {
				case event := <-participant.Events:
					if err := writeEvent(conn, event); err != nil {
						return
					}
				default:
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, event domain.Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(event)
}

func writeError(conn *websocket.Conn, text string) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(domain.NewErrorMessage(text))
}

func statusFor(err error) int {
	if errors.Is(err, service.ErrRoomNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func attachment(ctx *gin.Context, ext string) string {
	return fmt.Sprintf(`attachment; filename="%s-%s.%s"`,
		domain.NormalizeHouseCode(ctx.Param("house")), ctx.Param("room"), ext)
}
