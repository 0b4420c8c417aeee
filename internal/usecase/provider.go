package usecase

import (
	"context"

	"github.com/fplive/fplive/internal/domain/fixture"
	"github.com/fplive/fplive/internal/domain/gameweek"
	"github.com/fplive/fplive/internal/domain/player"
	"github.com/fplive/fplive/internal/domain/scoring"
	"github.com/fplive/fplive/internal/domain/team"
)

// LiveDataProvider is the upstream read surface the engine polls. All
// methods are idempotent reads; a failed call must never yield partial data.
type LiveDataProvider interface {
	FetchBootstrap(ctx context.Context) (BootstrapData, error)
	FetchFixtures(ctx context.Context) ([]fixture.Fixture, error)
	FetchLiveStats(ctx context.Context, gw int) (map[int64]scoring.PlayerStats, error)
	FetchTeamPicks(ctx context.Context, teamID string, gw int) (TeamPicksData, error)
	FetchManager(ctx context.Context, teamID string) (team.Manager, error)
}

// BootstrapData is the wholesale reference-data snapshot.
type BootstrapData struct {
	Gameweeks []gameweek.Gameweek
	Clubs     []player.Club
	Players   []player.Player
}

// TeamPicksData is one tracked team's roster and gameweek summary.
type TeamPicksData struct {
	Picks   []team.Pick
	History team.GameweekHistory
}
