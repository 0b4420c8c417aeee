package fixture

import "time"

// LiveWindow is how long after kickoff a fixture is considered in play.
const LiveWindow = 2 * time.Hour

// Fixture represents one scheduled match of a gameweek.
type Fixture struct {
	ID        int64     `json:"id"`
	Gameweek  int       `json:"gameweek"`
	KickoffAt time.Time `json:"kickoffTime"`
	Finished  bool      `json:"finished"`
	HomeClub  int64     `json:"homeClub"`
	AwayClub  int64     `json:"awayClub"`
	HomeScore *int      `json:"homeScore"`
	AwayScore *int      `json:"awayScore"`
}

// InLiveWindow reports whether the fixture is inside its live scoring
// window at the given instant: kickoff <= now <= kickoff + LiveWindow.
func (f Fixture) InLiveWindow(now time.Time) bool {
	if f.KickoffAt.IsZero() {
		return false
	}
	return !now.Before(f.KickoffAt) && !now.After(f.KickoffAt.Add(LiveWindow))
}

// AnyLive reports whether any fixture of the given gameweek is inside its
// live window. Used by the poll scheduler to pick its cadence.
func AnyLive(fixtures []Fixture, gameweek int, now time.Time) bool {
	for _, f := range fixtures {
		if f.Gameweek != gameweek {
			continue
		}
		if f.InLiveWindow(now) {
			return true
		}
	}
	return false
}

// ForGameweek returns the subset of fixtures belonging to one gameweek.
func ForGameweek(fixtures []Fixture, gameweek int) []Fixture {
	out := make([]Fixture, 0, len(fixtures))
	for _, f := range fixtures {
		if f.Gameweek == gameweek {
			out = append(out, f)
		}
	}
	return out
}
