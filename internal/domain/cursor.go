package domain

import "time"

const DefaultCursorStaleness = 2 * time.Second

type Cursor struct {
	ID          string    `json:"id"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	DisplayName string    `json:"displayName"`
	LastSeen    time.Time `json:"-"`
}
