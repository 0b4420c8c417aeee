package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fplive/fplive/internal/domain/fixture"
	"github.com/fplive/fplive/internal/domain/gameweek"
	"github.com/fplive/fplive/internal/domain/player"
	"github.com/fplive/fplive/internal/domain/scoring"
	"github.com/fplive/fplive/internal/domain/team"
	"github.com/fplive/fplive/internal/platform/logging"
)

// GameweekStatus mirrors the resolved gameweek in outbound payloads.
type GameweekStatus struct {
	Current    int  `json:"current"`
	IsFinished bool `json:"isFinished"`
}

// TeamUpdate is the full per-team snapshot sent to live connections, both
// as the one-time initial message and on every completed poll cycle.
type TeamUpdate struct {
	Picks          []team.Pick          `json:"picks"`
	LiveScore      int                  `json:"liveScore"`
	Events         []scoring.Event      `json:"events"`
	Gameweek       int                  `json:"gameweek"`
	Manager        team.Manager         `json:"manager"`
	History        team.GameweekHistory `json:"history"`
	GameweekStatus GameweekStatus       `json:"gameweekStatus"`
	Fixtures       []fixture.Fixture    `json:"fixtures"`
}

type teamEntry struct {
	teamID    string
	gameweek  int
	picks     []team.Pick
	manager   team.Manager
	history   team.GameweekHistory
	liveScore int
	events    []scoring.Event
	prevStats map[int64]scoring.PlayerStats
}

// ObserverCounter reports how many live observers (connections plus push
// subscriptions) a team currently has. Installed once at wiring time.
type ObserverCounter func(teamID string) int

// LiveStateService owns the reference-data cache and the per-team live
// state. Reference data is replaced wholesale on every successful refresh
// and retained unchanged when a refresh fails. One mutex guards both the
// cache and the team map.
type LiveStateService struct {
	provider LiveDataProvider
	logger   *logging.Logger
	now      func() time.Time

	mu          sync.Mutex
	players     map[int64]player.Player
	clubs       map[int64]player.Club
	gameweeks   []gameweek.Gameweek
	fixtures    []fixture.Fixture
	current     gameweek.Gameweek
	stats       map[int64]scoring.PlayerStats
	refreshed   bool
	teams       map[string]*teamEntry
	cycleActive bool
	evictQueue  map[string]struct{}

	observers ObserverCounter
}

func NewLiveStateService(provider LiveDataProvider, logger *logging.Logger) *LiveStateService {
	if logger == nil {
		logger = logging.Default()
	}
	return &LiveStateService{
		provider:   provider,
		logger:     logger,
		now:        time.Now,
		players:    map[int64]player.Player{},
		clubs:      map[int64]player.Club{},
		stats:      map[int64]scoring.PlayerStats{},
		teams:      map[string]*teamEntry{},
		evictQueue: map[string]struct{}{},
		observers:  func(string) int { return 0 },
	}
}

// SetObserverCounter installs the wiring-time observer source. Must be
// called before the first registration or poll cycle.
func (s *LiveStateService) SetObserverCounter(fn ObserverCounter) {
	if fn != nil {
		s.observers = fn
	}
}

// RefreshReference pulls bootstrap data, fixtures and the live stat sheet
// for the resolved gameweek, then swaps the cache in one step. On any
// upstream failure the previous cache is left untouched.
func (s *LiveStateService) RefreshReference(ctx context.Context) error {
	ctx, span := startUsecaseSpan(ctx, "LiveStateService.RefreshReference")
	defer span.End()

	bootstrap, err := s.provider.FetchBootstrap(ctx)
	if err != nil {
		return fmt.Errorf("refresh reference: %w", err)
	}
	current, err := gameweek.Resolve(bootstrap.Gameweeks)
	if err != nil {
		return fmt.Errorf("refresh reference: %w", err)
	}
	fixtures, err := s.provider.FetchFixtures(ctx)
	if err != nil {
		return fmt.Errorf("refresh reference: %w", err)
	}
	stats, err := s.provider.FetchLiveStats(ctx, current.ID)
	if err != nil {
		return fmt.Errorf("refresh reference: %w", err)
	}

	players := make(map[int64]player.Player, len(bootstrap.Players))
	for _, p := range bootstrap.Players {
		players[p.ID] = p
	}
	clubs := make(map[int64]player.Club, len(bootstrap.Clubs))
	for _, c := range bootstrap.Clubs {
		clubs[c.ID] = c
	}

	s.mu.Lock()
	s.players = players
	s.clubs = clubs
	s.gameweeks = bootstrap.Gameweeks
	s.fixtures = fixtures
	s.current = current
	s.stats = stats
	s.refreshed = true
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "reference data refreshed",
		"gameweek", current.ID, "players", len(players), "fixtures", len(fixtures))
	return nil
}

// Ready reports whether at least one reference refresh has succeeded.
func (s *LiveStateService) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshed
}

// CurrentGameweek returns the resolved gameweek of the latest refresh.
func (s *LiveStateService) CurrentGameweek() (gameweek.Gameweek, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.refreshed {
		return gameweek.Gameweek{}, fmt.Errorf("%w: reference data not loaded", ErrDependencyUnavailable)
	}
	return s.current, nil
}

// Live reports whether the engine is inside a live scoring window: the
// current gameweek is unfinished and at least one of its fixtures is
// between kickoff and kickoff plus the live window.
func (s *LiveStateService) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.refreshed || s.current.Finished {
		return false
	}
	return fixture.AnyLive(s.fixtures, s.current.ID, s.now())
}

// TrackedTeamIDs lists the teams that currently hold live state.
func (s *LiveStateService) TrackedTeamIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.teams))
	for id := range s.teams {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// EnsureTeam returns the current snapshot for a team, creating its state
// with an out-of-band upstream fetch when the team is not tracked yet.
// Creation seeds the previous stat snapshot with the current one so a new
// observer never triggers a notification burst.
func (s *LiveStateService) EnsureTeam(ctx context.Context, teamID string) (TeamUpdate, error) {
	ctx, span := startUsecaseSpan(ctx, "LiveStateService.EnsureTeam")
	defer span.End()

	if teamID == "" {
		return TeamUpdate{}, fmt.Errorf("%w: team id is required", ErrInvalidInput)
	}

	s.mu.Lock()
	if !s.refreshed {
		s.mu.Unlock()
		return TeamUpdate{}, fmt.Errorf("%w: reference data not loaded", ErrDependencyUnavailable)
	}
	if entry, ok := s.teams[teamID]; ok {
		update := s.updateFromEntryLocked(entry)
		delete(s.evictQueue, teamID)
		s.mu.Unlock()
		return update, nil
	}
	current := s.current
	s.mu.Unlock()

	picks, err := s.provider.FetchTeamPicks(ctx, teamID, current.ID)
	if err != nil {
		return TeamUpdate{}, fmt.Errorf("ensure team %s: %w", teamID, err)
	}
	manager, err := s.provider.FetchManager(ctx, teamID)
	if err != nil {
		return TeamUpdate{}, fmt.Errorf("ensure team %s: %w", teamID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.teams[teamID]; ok {
		return s.updateFromEntryLocked(entry), nil
	}
	entry := &teamEntry{
		teamID:   teamID,
		gameweek: current.ID,
		picks:    picks.Picks,
		manager:  manager,
		history:  picks.History,
	}
	s.applyStatsLocked(entry)
	entry.prevStats = s.snapshotStatsLocked(entry.picks)
	s.teams[teamID] = entry
	s.logger.InfoContext(ctx, "team state created", "team_id", teamID, "gameweek", current.ID)
	return s.updateFromEntryLocked(entry), nil
}

// RefreshTeam re-pulls the team's roster and manager record, recomputes
// its live state against the cached stat sheet and returns the broadcast
// snapshot together with the notification events, which cover only stat
// counters that changed since the previous cycle.
func (s *LiveStateService) RefreshTeam(ctx context.Context, teamID string) (TeamUpdate, []scoring.Event, error) {
	ctx, span := startUsecaseSpan(ctx, "LiveStateService.RefreshTeam")
	defer span.End()

	if s.observers(teamID) == 0 {
		s.Release(teamID)
		return TeamUpdate{}, nil, fmt.Errorf("%w: team %s has no observers", ErrNotFound, teamID)
	}

	s.mu.Lock()
	if !s.refreshed {
		s.mu.Unlock()
		return TeamUpdate{}, nil, fmt.Errorf("%w: reference data not loaded", ErrDependencyUnavailable)
	}
	current := s.current
	s.mu.Unlock()

	picks, err := s.provider.FetchTeamPicks(ctx, teamID, current.ID)
	if err != nil {
		return TeamUpdate{}, nil, fmt.Errorf("refresh team %s: %w", teamID, err)
	}
	manager, err := s.provider.FetchManager(ctx, teamID)
	if err != nil {
		return TeamUpdate{}, nil, fmt.Errorf("refresh team %s: %w", teamID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.teams[teamID]
	if !ok {
		entry = &teamEntry{teamID: teamID}
		entry.prevStats = s.snapshotStatsLocked(picks.Picks)
		s.teams[teamID] = entry
	}
	entry.gameweek = current.ID
	entry.picks = picks.Picks
	entry.manager = manager
	entry.history = picks.History
	notify := s.diffEventsLocked(entry)
	s.applyStatsLocked(entry)
	entry.prevStats = s.snapshotStatsLocked(entry.picks)
	return s.updateFromEntryLocked(entry), notify, nil
}

// Snapshot returns the cached state for a tracked team without touching
// the upstream.
func (s *LiveStateService) Snapshot(teamID string) (TeamUpdate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.teams[teamID]
	if !ok {
		return TeamUpdate{}, false
	}
	return s.updateFromEntryLocked(entry), true
}

// Release drops a team's state once its last observer is gone. While a
// poll cycle is running the eviction is queued and applied at cycle end;
// a team that regains an observer before then is kept.
func (s *LiveStateService) Release(teamID string) {
	if s.observers(teamID) > 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[teamID]; !ok {
		return
	}
	if s.cycleActive {
		s.evictQueue[teamID] = struct{}{}
		return
	}
	delete(s.teams, teamID)
	s.logger.Info("team state evicted", "team_id", teamID)
}

// BeginCycle marks a poll cycle as in flight so evictions defer.
func (s *LiveStateService) BeginCycle() {
	s.mu.Lock()
	s.cycleActive = true
	s.mu.Unlock()
}

// EndCycle applies deferred evictions, skipping teams that regained an
// observer while the cycle ran.
func (s *LiveStateService) EndCycle() {
	s.mu.Lock()
	queued := make([]string, 0, len(s.evictQueue))
	for id := range s.evictQueue {
		queued = append(queued, id)
	}
	s.evictQueue = map[string]struct{}{}
	s.cycleActive = false
	s.mu.Unlock()

	for _, id := range queued {
		s.Release(id)
	}
}

// applyStatsLocked recomputes the entry's live score and broadcast events
// from the cached stat sheet. Broadcast events are the full rule-table
// evaluation of each starter's current stat line.
func (s *LiveStateService) applyStatsLocked(entry *teamEntry) {
	at := s.now()
	entry.liveScore = team.LiveScore(entry.picks, s.stats)
	events := make([]scoring.Event, 0, len(entry.picks)*2)
	for _, pick := range entry.picks {
		if !pick.IsStarter() {
			continue
		}
		stats, ok := s.stats[pick.PlayerID]
		if !ok {
			continue
		}
		name, pos := s.playerIdentityLocked(pick.PlayerID)
		events = append(events, scoring.Evaluate(stats, pos, name, at)...)
	}
	entry.events = events
}

// diffEventsLocked computes the notification events for an entry: rule
// evaluations whose underlying counters changed since the entry's
// previous stat snapshot.
func (s *LiveStateService) diffEventsLocked(entry *teamEntry) []scoring.Event {
	at := s.now()
	var out []scoring.Event
	for _, pick := range entry.picks {
		if !pick.IsStarter() {
			continue
		}
		curr, ok := s.stats[pick.PlayerID]
		if !ok {
			continue
		}
		prev := entry.prevStats[pick.PlayerID]
		name, pos := s.playerIdentityLocked(pick.PlayerID)
		out = append(out, scoring.Diff(prev, curr, pos, name, at)...)
	}
	return out
}

func (s *LiveStateService) snapshotStatsLocked(picks []team.Pick) map[int64]scoring.PlayerStats {
	out := make(map[int64]scoring.PlayerStats, len(picks))
	for _, pick := range picks {
		if stats, ok := s.stats[pick.PlayerID]; ok {
			out[pick.PlayerID] = stats
		}
	}
	return out
}

func (s *LiveStateService) playerIdentityLocked(playerID int64) (string, player.Position) {
	p, ok := s.players[playerID]
	if !ok {
		return fmt.Sprintf("Player %d", playerID), ""
	}
	return p.Name, p.Position
}

func (s *LiveStateService) updateFromEntryLocked(entry *teamEntry) TeamUpdate {
	return TeamUpdate{
		Picks:     entry.picks,
		LiveScore: entry.liveScore,
		Events:    entry.events,
		Gameweek:  entry.gameweek,
		Manager:   entry.manager,
		History:   entry.history,
		GameweekStatus: GameweekStatus{
			Current:    s.current.ID,
			IsFinished: s.current.Finished,
		},
		Fixtures: fixture.ForGameweek(s.fixtures, s.current.ID),
	}
}
