package domain

import (
	"sync"
	"time"
)

type ParticipantStatus string

const (
	ParticipantConnected    ParticipantStatus = "connected"
	ParticipantConnecting   ParticipantStatus = "connecting"
	ParticipantDisconnected ParticipantStatus = "disconnected"
)

const participantQueueSize = 64

// Participant is a client connection registered in a relay room. Its ID is
// the session id the client advertises, so a reconnecting client keeps it.
// Events is never closed; Done is closed once the participant is gone.
type Participant struct {
	ID          string
	DisplayName string
	Color       string
	Status      ParticipantStatus
	JoinedAt    time.Time
	LastSeen    time.Time
	Mutex       sync.RWMutex
	Events      chan Message
	done        chan struct{}
	closeOnce   sync.Once
}

func NewParticipant(sessionID, displayName, color string) *Participant {
	now := time.Now().UTC()
	return &Participant{
		ID:          sessionID,
		DisplayName: displayName,
		Color:       color,
		Status:      ParticipantConnecting,
		JoinedAt:    now,
		LastSeen:    now,
		Events:      make(chan Message, participantQueueSize),
		done:        make(chan struct{}),
	}
}

func (p *Participant) Touch() {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	p.LastSeen = time.Now().UTC()
}

// EnqueueEvent queues msg for delivery and reports false when the queue is
// full or the participant is closed.
func (p *Participant) EnqueueEvent(msg Message) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.Events <- msg:
		return true
	case <-p.done:
		return false
	default:
		return false
	}
}

// Done is closed by Close.
func (p *Participant) Done() <-chan struct{} {
	return p.done
}

func (p *Participant) SetStatus(status ParticipantStatus) {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	p.Status = status
}

func (p *Participant) SetColor(color string) {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	p.Color = color
}

func (p *Participant) Name() string {
	p.Mutex.RLock()
	defer p.Mutex.RUnlock()
	return p.DisplayName
}

// Close stops event delivery. Safe to call more than once.
func (p *Participant) Close() {
	p.closeOnce.Do(func() {
		p.SetStatus(ParticipantDisconnected)
		close(p.done)
	})
}
