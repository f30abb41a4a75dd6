package service

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/immxrtalbeast/trailboard/internal/domain"
	"github.com/jonboulle/clockwork"
)

const DefaultPeerInactivity = 30 * time.Second

// PeerRegistry owns the trail buffer and presentation metadata of every
// remote participant a client has heard from.
type PeerRegistry struct {
	mu       sync.RWMutex
	log      *slog.Logger
	clock    clockwork.Clock
	lifetime time.Duration
	peers    map[string]*domain.Peer
}

func NewPeerRegistry(log *slog.Logger, clock clockwork.Clock, lifetime time.Duration) *PeerRegistry {
	if log == nil {
		log = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if lifetime <= 0 {
		lifetime = domain.DefaultTrailLifetime
	}
	return &PeerRegistry{
		log:      log,
		clock:    clock,
		lifetime: lifetime,
		peers:    make(map[string]*domain.Peer),
	}
}

// Upsert registers id on first sight. Later calls merge the given settings
// into the stored ones and refresh the last-seen time.
func (r *PeerRegistry) Upsert(id, displayName string, settings *domain.Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[id]
	if !ok {
		peer = &domain.Peer{
			ID:          id,
			DisplayName: displayName,
			Settings:    domain.DefaultSettings(),
			Trail:       domain.NewTrailBuffer(r.clock, r.lifetime),
		}
		r.peers[id] = peer
		r.log.Debug("peer registered", slog.String("peer_id", id), slog.String("display_name", displayName))
	}
	if displayName != "" {
		peer.DisplayName = displayName
	}
	if settings != nil {
		peer.Settings = peer.Settings.Merge(*settings)
	}
	peer.LastSeen = r.clock.Now()
}

func (r *PeerRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// Ingest appends marks produced by the peer itself. Unknown peers are
// ignored.
func (r *PeerRegistry) Ingest(id string, marks []domain.Mark) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[id]
	if !ok {
		return false
	}
	peer.Trail.Append(marks...)
	peer.LastSeen = r.clock.Now()
	return true
}

func (r *PeerRegistry) UpdateSettings(id string, partial domain.Settings) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[id]
	if !ok {
		return false
	}
	peer.Settings = peer.Settings.Merge(partial)
	peer.LastSeen = r.clock.Now()
	return true
}

// Touch refreshes the last-seen time of a known peer.
func (r *PeerRegistry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[id]
	if !ok {
		return false
	}
	peer.LastSeen = r.clock.Now()
	return true
}

// Snapshot returns the visible trail of every peer that has one, ordered
// by peer id. Peers without visible marks are left out but stay registered.
func (r *PeerRegistry) Snapshot() []domain.PeerTrail {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.PeerTrail, 0, len(r.peers))
	for _, peer := range r.peers {
		peer.Trail.Cleanup()
		marks := peer.Trail.Active()
		if len(marks) == 0 {
			continue
		}
		result = append(result, domain.PeerTrail{
			ID:          peer.ID,
			DisplayName: peer.DisplayName,
			Marks:       marks,
			Settings:    peer.Settings.Clone(),
		})
	}
	slices.SortFunc(result, func(a, b domain.PeerTrail) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result
}

// Cleanup drops expired marks from every buffer.
func (r *PeerRegistry) Cleanup() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, peer := range r.peers {
		peer.Trail.Cleanup()
	}
}

// ReapInactive drops peers not seen for longer than inactivity and returns
// their ids.
func (r *PeerRegistry) ReapInactive(inactivity time.Duration) []string {
	const op = "service.peers.reap"

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	removed := make([]string, 0)
	for id, peer := range r.peers {
		if now.Sub(peer.LastSeen) > inactivity {
			delete(r.peers, id)
			removed = append(removed, id)
			r.log.Info("removing inactive peer",
				slog.String("op", op),
				slog.String("peer_id", id),
				slog.String("display_name", peer.DisplayName),
				slog.Duration("idle", now.Sub(peer.LastSeen)),
			)
		}
	}
	slices.Sort(removed)
	return removed
}

// SetGlobalLifetime applies lifetime to every current buffer and to the
// buffers of peers registered later.
func (r *PeerRegistry) SetGlobalLifetime(lifetime time.Duration) {
	if lifetime <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lifetime = lifetime
	for _, peer := range r.peers {
		peer.Trail.SetLifetime(lifetime)
	}
}

func (r *PeerRegistry) Lifetime() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lifetime
}

// Peer returns the metadata of id.
func (r *PeerRegistry) Peer(id string) (domain.PeerInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, ok := r.peers[id]
	if !ok {
		return domain.PeerInfo{}, false
	}
	return toPeerInfo(peer), true
}

// Peers lists every registered peer, including those without visible marks.
func (r *PeerRegistry) Peers() []domain.PeerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.PeerInfo, 0, len(r.peers))
	for _, peer := range r.peers {
		result = append(result, toPeerInfo(peer))
	}
	slices.SortFunc(result, func(a, b domain.PeerInfo) int {
		return strings.Compare(a.ID, b.ID)
	})
	return result
}

func (r *PeerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *PeerRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = make(map[string]*domain.Peer)
}

func toPeerInfo(peer *domain.Peer) domain.PeerInfo {
	return domain.PeerInfo{
		ID:          peer.ID,
		DisplayName: peer.DisplayName,
		Settings:    peer.Settings.Clone(),
		LastSeen:    peer.LastSeen,
	}
}
