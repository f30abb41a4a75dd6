package domain

type BoardMode string

const (
	ModeTrail BoardMode = "trail"
	ModeTafel BoardMode = "tafel"
)

func (m BoardMode) Valid() bool {
	return m == ModeTrail || m == ModeTafel
}
