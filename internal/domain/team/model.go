package team

import "github.com/fplive/fplive/internal/domain/scoring"

// Pick is one roster slot assignment for a tracked team in one gameweek.
// SquadPosition 1-11 denotes a starter, 12-15 the bench.
type Pick struct {
	PlayerID      int64 `json:"element"`
	SquadPosition int   `json:"position"`
	Multiplier    int   `json:"multiplier"`
	IsCaptain     bool  `json:"isCaptain"`
	IsViceCaptain bool  `json:"isViceCaptain"`
}

// IsStarter reports whether the pick occupies a starting slot.
func (p Pick) IsStarter() bool {
	return p.SquadPosition >= 1 && p.SquadPosition <= 11
}

// Manager is the team owner's public info from the upstream entry record.
type Manager struct {
	Name          string `json:"name"`
	TeamName      string `json:"teamName"`
	OverallRank   int    `json:"overallRank"`
	OverallPoints int    `json:"overallPoints"`
}

// GameweekHistory summarises the team's result for one gameweek.
type GameweekHistory struct {
	Gameweek    int `json:"event"`
	Points      int `json:"points"`
	TotalPoints int `json:"totalPoints"`
	OverallRank int `json:"overallRank"`
}

// LiveScore sums total points across picks weighted by each pick's
// multiplier. Picks without a stat line contribute zero.
func LiveScore(picks []Pick, statsByPlayer map[int64]scoring.PlayerStats) int {
	total := 0
	for _, pick := range picks {
		stats, ok := statsByPlayer[pick.PlayerID]
		if !ok {
			continue
		}
		total += stats.TotalPoints * pick.Multiplier
	}
	return total
}
