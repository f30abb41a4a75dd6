package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownMessage   = errors.New("unknown message type")
	ErrMalformedMessage = errors.New("malformed message")
)

type MessageType string

// Server to client.
const (
	TypeJoined            MessageType = "joined"
	TypeRooms             MessageType = "rooms"
	TypeRemoteDrawPoints  MessageType = "remoteDrawPoints"
	TypeRemoteCursor      MessageType = "remoteCursor"
	TypeRemoteSettings    MessageType = "remoteSettings"
	TypeRemoteStrokeStart MessageType = "remoteStrokeStart"
	TypeRemoteStrokeEnd   MessageType = "remoteStrokeEnd"
	TypeTafelSync         MessageType = "tafelSync"
	TypeError             MessageType = "error"
)

// Client to server.
const (
	TypeJoin           MessageType = "join"
	TypeDrawPoints     MessageType = "drawPoints"
	TypeStrokeStart    MessageType = "strokeStart"
	TypeStrokeEnd      MessageType = "strokeEnd"
	TypeCursorMove     MessageType = "cursorMove"
	TypeSettingsUpdate MessageType = "settingsUpdate"
)

// Both directions.
const (
	TypeModeChange         MessageType = "modeChange"
	TypeRoomLifetimeChange MessageType = "roomLifetimeChange"
	TypeTafelStroke        MessageType = "tafelStroke"
	TypeTafelDrawing       MessageType = "tafelDrawing"
	TypeTafelErase         MessageType = "tafelErase"
	TypeTafelClear         MessageType = "tafelClear"
	TypeTafelClearMine     MessageType = "tafelClearMine"
	TypeUserColorChange    MessageType = "userColorChange"
)

// Message is the wire envelope. Error replies carry their text in Message
// instead of Data.
type Message struct {
	Type    MessageType     `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

func NewMessage(t MessageType, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: t}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s: %w", t, err)
	}
	return Message{Type: t, Data: data}, nil
}

// WithSession returns a copy of msg whose data object carries sessionID,
// overriding any sessionId already present.
func (m Message) WithSession(sessionID string) (Message, error) {
	fields := map[string]json.RawMessage{}
	if len(m.Data) > 0 && string(m.Data) != "null" {
		if err := json.Unmarshal(m.Data, &fields); err != nil {
			return Message{}, fmt.Errorf("%w: %s data is not an object", ErrMalformedMessage, m.Type)
		}
	}
	id, err := json.Marshal(sessionID)
	if err != nil {
		return Message{}, err
	}
	fields["sessionId"] = id

	data, err := json.Marshal(fields)
	if err != nil {
		return Message{}, err
	}
	m.Data = data
	return m, nil
}

type RoomSummary struct {
	Name  string `json:"name"`
	Users int    `json:"users"`
}

// Origin identifies the participant a relayed payload is attributed to.
type Origin struct {
	SessionID string `json:"sessionId,omitempty"`
	UserName  string `json:"userName,omitempty"`
}

// Inbound is the closed set of messages a client receives.
type Inbound interface {
	Type() MessageType
	isInbound()
}

// Outbound is the closed set of messages a client sends.
type Outbound interface {
	Type() MessageType
	isOutbound()
}

type Joined struct {
	SessionID     string        `json:"sessionId,omitempty"`
	IsHousemaster bool          `json:"isHousemaster"`
	Rooms         []RoomSummary `json:"rooms"`
	Mode          BoardMode     `json:"mode,omitempty"`
	Lifetime      int64         `json:"lifetime,omitempty"`
}

type Rooms struct {
	Rooms []RoomSummary
}

func (r Rooms) MarshalJSON() ([]byte, error) {
	if r.Rooms == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r.Rooms)
}

func (r *Rooms) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &r.Rooms)
}

type RemoteDrawPoints struct {
	Origin
	Points []Mark `json:"points"`
}

type RemoteCursor struct {
	Origin
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

type RemoteSettings struct {
	Origin
	Settings Settings `json:"settings"`
}

type RemoteStrokeStart struct {
	Origin
	StrokeID  int   `json:"strokeId"`
	Timestamp int64 `json:"timestamp,omitempty"`
}

type RemoteStrokeEnd struct {
	Origin
	StrokeID int `json:"strokeId"`
}

type TafelSync struct {
	Strokes []Stroke `json:"strokes"`
}

type ServerError struct {
	Message string `json:"message"`
}

type Join struct {
	HouseCode string `json:"houseCode"`
	RoomName  string `json:"roomName"`
	UserName  string `json:"userName"`
	Color     string `json:"color,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type DrawPoints struct {
	Points []Mark `json:"points"`
}

type StrokeStart struct {
	StrokeID  int   `json:"strokeId"`
	Timestamp int64 `json:"timestamp"`
}

type StrokeEnd struct {
	StrokeID int `json:"strokeId"`
}

type CursorMove struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp"`
}

type SettingsUpdate struct {
	Settings Settings `json:"settings"`
}

type ModeChange struct {
	Origin
	Mode BoardMode `json:"mode"`
}

type RoomLifetimeChange struct {
	Origin
	Lifetime int64 `json:"lifetime"`
}

type TafelStroke struct {
	Origin
	Stroke Stroke `json:"stroke"`
}

type TafelDrawing struct {
	Origin
	StrokeID string        `json:"strokeId"`
	Points   []StrokePoint `json:"points"`
}

type TafelErase struct {
	Origin
	StrokeIDs []string `json:"strokeIds"`
}

type TafelClear struct {
	Origin
}

type TafelClearMine struct {
	Origin
}

type UserColorChange struct {
	Origin
	Color string `json:"color"`
}

func (*Joined) Type() MessageType             { return TypeJoined }
func (*Rooms) Type() MessageType              { return TypeRooms }
func (*RemoteDrawPoints) Type() MessageType   { return TypeRemoteDrawPoints }
func (*RemoteCursor) Type() MessageType       { return TypeRemoteCursor }
func (*RemoteSettings) Type() MessageType     { return TypeRemoteSettings }
func (*RemoteStrokeStart) Type() MessageType  { return TypeRemoteStrokeStart }
func (*RemoteStrokeEnd) Type() MessageType    { return TypeRemoteStrokeEnd }
func (*TafelSync) Type() MessageType          { return TypeTafelSync }
func (*ServerError) Type() MessageType        { return TypeError }
func (*Join) Type() MessageType               { return TypeJoin }
func (*DrawPoints) Type() MessageType         { return TypeDrawPoints }
func (*StrokeStart) Type() MessageType        { return TypeStrokeStart }
func (*StrokeEnd) Type() MessageType          { return TypeStrokeEnd }
func (*CursorMove) Type() MessageType         { return TypeCursorMove }
func (*SettingsUpdate) Type() MessageType     { return TypeSettingsUpdate }
func (*ModeChange) Type() MessageType         { return TypeModeChange }
func (*RoomLifetimeChange) Type() MessageType { return TypeRoomLifetimeChange }
func (*TafelStroke) Type() MessageType        { return TypeTafelStroke }
func (*TafelDrawing) Type() MessageType       { return TypeTafelDrawing }
func (*TafelErase) Type() MessageType         { return TypeTafelErase }
func (*TafelClear) Type() MessageType         { return TypeTafelClear }
func (*TafelClearMine) Type() MessageType     { return TypeTafelClearMine }
func (*UserColorChange) Type() MessageType    { return TypeUserColorChange }

func (*Joined) isInbound()             {}
func (*Rooms) isInbound()              {}
func (*RemoteDrawPoints) isInbound()   {}
func (*RemoteCursor) isInbound()       {}
func (*RemoteSettings) isInbound()     {}
func (*RemoteStrokeStart) isInbound()  {}
func (*RemoteStrokeEnd) isInbound()    {}
func (*TafelSync) isInbound()          {}
func (*ServerError) isInbound()        {}
func (*ModeChange) isInbound()         {}
func (*RoomLifetimeChange) isInbound() {}
func (*TafelStroke) isInbound()        {}
func (*TafelDrawing) isInbound()       {}
func (*TafelErase) isInbound()         {}
func (*TafelClear) isInbound()         {}
func (*TafelClearMine) isInbound()     {}
func (*UserColorChange) isInbound()    {}

func (*Join) isOutbound()               {}
func (*DrawPoints) isOutbound()         {}
func (*StrokeStart) isOutbound()        {}
func (*StrokeEnd) isOutbound()          {}
func (*CursorMove) isOutbound()         {}
func (*SettingsUpdate) isOutbound()     {}
func (*ModeChange) isOutbound()         {}
func (*RoomLifetimeChange) isOutbound() {}
func (*TafelStroke) isOutbound()        {}
func (*TafelDrawing) isOutbound()       {}
func (*TafelErase) isOutbound()         {}
func (*TafelClear) isOutbound()         {}
func (*TafelClearMine) isOutbound()     {}
func (*UserColorChange) isOutbound()    {}

var inboundTypes = map[MessageType]func() Inbound{
	TypeJoined:             func() Inbound { return &Joined{} },
	TypeRooms:              func() Inbound { return &Rooms{} },
	TypeRemoteDrawPoints:   func() Inbound { return &RemoteDrawPoints{} },
	TypeRemoteCursor:       func() Inbound { return &RemoteCursor{} },
	TypeRemoteSettings:     func() Inbound { return &RemoteSettings{} },
	TypeRemoteStrokeStart:  func() Inbound { return &RemoteStrokeStart{} },
	TypeRemoteStrokeEnd:    func() Inbound { return &RemoteStrokeEnd{} },
	TypeTafelSync:          func() Inbound { return &TafelSync{} },
	TypeModeChange:         func() Inbound { return &ModeChange{} },
	TypeRoomLifetimeChange: func() Inbound { return &RoomLifetimeChange{} },
	TypeTafelStroke:        func() Inbound { return &TafelStroke{} },
	TypeTafelDrawing:       func() Inbound { return &TafelDrawing{} },
	TypeTafelErase:         func() Inbound { return &TafelErase{} },
	TypeTafelClear:         func() Inbound { return &TafelClear{} },
	TypeTafelClearMine:     func() Inbound { return &TafelClearMine{} },
	TypeUserColorChange:    func() Inbound { return &UserColorChange{} },
}

var outboundTypes = map[MessageType]func() Outbound{
	TypeJoin:               func() Outbound { return &Join{} },
	TypeDrawPoints:         func() Outbound { return &DrawPoints{} },
	TypeStrokeStart:        func() Outbound { return &StrokeStart{} },
	TypeStrokeEnd:          func() Outbound { return &StrokeEnd{} },
	TypeCursorMove:         func() Outbound { return &CursorMove{} },
	TypeSettingsUpdate:     func() Outbound { return &SettingsUpdate{} },
	TypeModeChange:         func() Outbound { return &ModeChange{} },
	TypeRoomLifetimeChange: func() Outbound { return &RoomLifetimeChange{} },
	TypeTafelStroke:        func() Outbound { return &TafelStroke{} },
	TypeTafelDrawing:       func() Outbound { return &TafelDrawing{} },
	TypeTafelErase:         func() Outbound { return &TafelErase{} },
	TypeTafelClear:         func() Outbound { return &TafelClear{} },
	TypeTafelClearMine:     func() Outbound { return &TafelClearMine{} },
	TypeUserColorChange:    func() Outbound { return &UserColorChange{} },
}

// DecodeInbound turns a received envelope into its typed payload.
func DecodeInbound(msg Message) (Inbound, error) {
	if msg.Type == TypeError {
		return &ServerError{Message: msg.Message}, nil
	}
	newPayload, ok := inboundTypes[msg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	payload := newPayload()
	if err := decodeData(msg, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// DecodeOutbound is the server-side counterpart of DecodeInbound.
func DecodeOutbound(msg Message) (Outbound, error) {
	newPayload, ok := outboundTypes[msg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	payload := newPayload()
	if err := decodeData(msg, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func decodeData(msg Message, payload any) error {
	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(msg.Data, payload); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedMessage, msg.Type, err)
	}
	return nil
}

// Encode wraps a typed payload into an envelope.
func Encode(payload interface{ Type() MessageType }) (Message, error) {
	return NewMessage(payload.Type(), payload)
}

func NewErrorMessage(text string) Message {
	return Message{Type: TypeError, Message: text}
}
