package domain

type DrawStyle string

const (
	DrawStyleLine DrawStyle = "line"
	DrawStyleDots DrawStyle = "dots"
)

// Settings describes how a participant's trail is drawn. Every field is
// optional so that a partial update can be told apart from a zero value.
type Settings struct {
	Color        *string    `json:"color,omitempty"`
	StrokeWidth  *float64   `json:"strokeWidth,omitempty"`
	DrawStyle    *DrawStyle `json:"drawStyle,omitempty"`
	FontSize     *int       `json:"fontSize,omitempty"`
	SpeedEnabled *bool      `json:"speedEnabled,omitempty"`
	MinWidth     *float64   `json:"minWidth,omitempty"`
	MaxWidth     *float64   `json:"maxWidth,omitempty"`
	Sensitivity  *float64   `json:"sensitivity,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{
		Color:       ptr("#ffffff"),
		StrokeWidth: ptr(DefaultStrokeWidth),
		DrawStyle:   ptr(DrawStyleLine),
		FontSize:    ptr(24),
	}
}

// Merge returns s with every field that is set in update overridden.
func (s Settings) Merge(update Settings) Settings {
	if update.Color != nil {
		s.Color = ptr(*update.Color)
	}
	if update.StrokeWidth != nil {
		s.StrokeWidth = ptr(*update.StrokeWidth)
	}
	if update.DrawStyle != nil {
		s.DrawStyle = ptr(*update.DrawStyle)
	}
	if update.FontSize != nil {
		s.FontSize = ptr(*update.FontSize)
	}
	if update.SpeedEnabled != nil {
		s.SpeedEnabled = ptr(*update.SpeedEnabled)
	}
	if update.MinWidth != nil {
		s.MinWidth = ptr(*update.MinWidth)
	}
	if update.MaxWidth != nil {
		s.MaxWidth = ptr(*update.MaxWidth)
	}
	if update.Sensitivity != nil {
		s.Sensitivity = ptr(*update.Sensitivity)
	}
	return s
}

// ColorOr returns the configured color or fallback when unset.
func (s Settings) ColorOr(fallback string) string {
	if s.Color == nil || *s.Color == "" {
		return fallback
	}
	return *s.Color
}

func ptr[T any](v T) *T {
	return &v
}

// Clone deep-copies every set field.
func (s Settings) Clone() Settings {
	return Settings{}.Merge(s)
}
