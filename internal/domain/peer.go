package domain

import "time"

// Peer is a remote participant as seen by a client: its presentation
// metadata plus the buffer holding its fading trail.
type Peer struct {
	ID          string
	DisplayName string
	Settings    Settings
	Trail       *TrailBuffer
	LastSeen    time.Time
}

// PeerInfo is the read-only view of a Peer handed to renderers.
type PeerInfo struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Settings    Settings  `json:"settings"`
	LastSeen    time.Time `json:"lastSeen"`
}

// PeerTrail is one entry of a registry snapshot.
type PeerTrail struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Marks       []Mark   `json:"marks"`
	Settings    Settings `json:"settings"`
}
