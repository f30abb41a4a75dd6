package domain

import "time"

type MarkKind string

const (
	MarkDraw MarkKind = "draw"
	MarkText MarkKind = "text"
)

// Mark is one timestamped sample of a fading trail. Marks are never
// mutated after they are appended to a buffer.
type Mark struct {
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Timestamp int64    `json:"timestamp"`
	StrokeID  int      `json:"strokeId"`
	Color     string   `json:"color,omitempty"`
	Kind      MarkKind `json:"type"`
	Pressure  float64  `json:"pressure"`
	Speed     float64  `json:"speed"`
	Char      string   `json:"char,omitempty"`
}

// Time returns the mark timestamp as a time.Time.
func (m Mark) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}
