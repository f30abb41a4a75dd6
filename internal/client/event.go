package client

import (
	"fmt"

	"github.com/immxrtalbeast/trailboard/internal/domain"
)

type EventKind int

const (
	// EventState reports a connection state change.
	EventState EventKind = iota
	// EventMessage reports an inbound message after it was applied.
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventMessage:
		return "message"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Event struct {
	Kind    EventKind
	State   State
	Message domain.Inbound
}
