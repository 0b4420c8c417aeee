package player

import "fmt"

// Position represents football position categories used by the scoring rules.
type Position string

const (
	PositionGoalkeeper Position = "GK"
	PositionDefender   Position = "DEF"
	PositionMidfielder Position = "MID"
	PositionForward    Position = "FWD"
)

var AllPositions = map[Position]struct{}{
	PositionGoalkeeper: {},
	PositionDefender:   {},
	PositionMidfielder: {},
	PositionForward:    {},
}

// FromElementType maps the upstream element_type code (1-4) to a Position.
func FromElementType(code int) (Position, error) {
	switch code {
	case 1:
		return PositionGoalkeeper, nil
	case 2:
		return PositionDefender, nil
	case 3:
		return PositionMidfielder, nil
	case 4:
		return PositionForward, nil
	default:
		return "", fmt.Errorf("invalid element type: %d", code)
	}
}

// Player is one selectable athlete; replaced wholesale on every reference refresh.
type Player struct {
	ID       int64
	Name     string
	ClubID   int64
	Position Position
}

// Club is the owning football club of a player.
type Club struct {
	ID        int64
	Name      string
	ShortName string
}

func (p Player) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("player id must be greater than zero")
	}
	if p.Name == "" {
		return fmt.Errorf("player name is required")
	}
	if _, ok := AllPositions[p.Position]; !ok {
		return fmt.Errorf("invalid player position: %s", p.Position)
	}
	return nil
}
