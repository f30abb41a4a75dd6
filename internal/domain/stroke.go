package domain

import "math"

type Tool string

const (
	ToolPen   Tool = "pen"
	ToolBrush Tool = "brush"
)

const (
	DefaultStrokeWidth = 4.0
	DefaultHitRadius   = 10.0
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type StrokePoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Speed float64 `json:"speed"`
}

// Stroke is a persistent blackboard stroke. Its owner never changes; only
// the owner appends points while the stroke is in progress.
type Stroke struct {
	StrokeID  string        `json:"strokeId"`
	OwnerID   string        `json:"userId"`
	OwnerName string        `json:"userName"`
	Tool      Tool          `json:"tool"`
	Color     string        `json:"color"`
	Width     float64       `json:"strokeWidth"`
	Points    []StrokePoint `json:"points"`
	CreatedAt int64         `json:"createdAt"`
}

// EffectiveWidth falls back to the default width for strokes sent without one.
func (s *Stroke) EffectiveWidth() float64 {
	if s.Width <= 0 {
		return DefaultStrokeWidth
	}
	return s.Width
}

// Touches reports whether any point of the stroke lies within
// radius + width/2 of (x, y).
func (s *Stroke) Touches(x, y, radius float64) bool {
	threshold := radius + s.EffectiveWidth()/2
	for _, p := range s.Points {
		if math.Hypot(p.X-x, p.Y-y) <= threshold {
			return true
		}
	}
	return false
}

func (s *Stroke) Clone() Stroke {
	c := *s
	c.Points = make([]StrokePoint, len(s.Points))
	copy(c.Points, s.Points)
	return c
}

const (
	brushMinWidthFactor = 0.3
	brushMaxWidthFactor = 2.5
	brushSensitivity    = 1.0
)

// BrushWidth maps drawing speed (px/ms) to a line width: slow strokes are
// thick, fast ones thin.
func BrushWidth(speed, baseWidth float64) float64 {
	if baseWidth <= 0 {
		baseWidth = DefaultStrokeWidth
	}
	minWidth := baseWidth * brushMinWidthFactor
	maxWidth := baseWidth * brushMaxWidthFactor

	factor := math.Exp(-speed * brushSensitivity)
	width := minWidth + (maxWidth-minWidth)*factor

	return math.Max(minWidth, math.Min(maxWidth, width))
}
