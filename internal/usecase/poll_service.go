package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	ants "github.com/panjf2000/ants/v2"

	"github.com/fplive/fplive/internal/platform/logging"
)

const (
	defaultLiveInterval = 30 * time.Second
	defaultIdleInterval = 15 * time.Minute
	defaultPollWorkers  = 8
)

// TeamBroadcaster pushes a completed per-team snapshot to every live
// connection watching that team.
type TeamBroadcaster interface {
	BroadcastTeamUpdate(teamID string, update TeamUpdate)
	TrackedTeamIDs() []string
}

type PollServiceConfig struct {
	LiveInterval time.Duration
	IdleInterval time.Duration
	Workers      int
}

func (c PollServiceConfig) normalize() PollServiceConfig {
	if c.LiveInterval <= 0 {
		c.LiveInterval = defaultLiveInterval
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = defaultIdleInterval
	}
	if c.Workers < 1 {
		c.Workers = defaultPollWorkers
	}
	return c
}

// PollService drives the refresh loop on an adaptive cadence: every 30
// seconds while a fixture of the current gameweek is inside its live
// window, every 15 minutes otherwise. A tick that fires while the
// previous cycle is still running is skipped, never overlapped.
type PollService struct {
	state         *LiveStateService
	notifications *NotificationService
	broadcaster   TeamBroadcaster
	cfg           PollServiceConfig
	logger        *logging.Logger

	cycleRunning atomic.Bool
	stopCh       chan struct{}
	doneCh       chan struct{}
	startOnce    sync.Once
	stopOnce     sync.Once
}

func NewPollService(
	state *LiveStateService,
	notifications *NotificationService,
	broadcaster TeamBroadcaster,
	cfg PollServiceConfig,
	logger *logging.Logger,
) *PollService {
	if logger == nil {
		logger = logging.Default()
	}
	return &PollService{
		state:         state,
		notifications: notifications,
		broadcaster:   broadcaster,
		cfg:           cfg.normalize(),
		logger:        logger,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start runs the first refresh synchronously so a client registering
// right after startup sees a populated snapshot, then launches the loop.
// A failed first refresh is logged and retried on the next tick.
func (s *PollService) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		if err := s.RunCycle(ctx); err != nil {
			s.logger.WarnContext(ctx, "initial refresh failed, retrying on next tick", "error", err)
		}
		go s.loop(ctx)
	})
}

// Stop halts the loop and waits for an in-flight cycle, bounded by ctx.
func (s *PollService) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("poll loop did not stop: %w", ctx.Err())
	}
}

func (s *PollService) loop(ctx context.Context) {
	defer close(s.doneCh)

	timer := time.NewTimer(s.interval())
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := s.RunCycle(ctx); err != nil {
				s.logger.WarnContext(ctx, "poll cycle failed", "error", err)
			}
			// Recomputing the interval after the cycle applies a mode
			// change immediately instead of waiting out the old timer.
			timer.Reset(s.interval())
		}
	}
}

func (s *PollService) interval() time.Duration {
	if s.state.Live() {
		return s.cfg.LiveInterval
	}
	return s.cfg.IdleInterval
}

// RunCycle executes one full refresh: reference data, fixtures and live
// stats, then every observed team through the worker pool. Per-team
// failures are logged and never abort the rest of the cycle.
func (s *PollService) RunCycle(ctx context.Context) error {
	if !s.cycleRunning.CompareAndSwap(false, true) {
		s.logger.Warn("skipping tick, previous poll cycle still running")
		return nil
	}
	defer s.cycleRunning.Store(false)

	ctx, span := startUsecaseSpan(ctx, "PollService.RunCycle")
	defer span.End()

	s.state.BeginCycle()
	defer s.state.EndCycle()

	start := time.Now()
	if err := s.state.RefreshReference(ctx); err != nil {
		return err
	}

	teams := s.observedTeamIDs()
	if len(teams) == 0 {
		return nil
	}

	pool, err := ants.NewPool(s.cfg.Workers)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var workers sync.WaitGroup
	for _, teamID := range teams {
		teamID := teamID
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()
			s.refreshOneTeam(ctx, teamID)
		}); err != nil {
			workers.Done()
			s.logger.WarnContext(ctx, "submit team refresh to worker pool", "team_id", teamID, "error", err)
		}
	}
	workers.Wait()

	s.logger.DebugContext(ctx, "poll cycle completed",
		"teams", len(teams), "live", s.state.Live(), "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (s *PollService) refreshOneTeam(ctx context.Context, teamID string) {
	update, notifyEvents, err := s.state.RefreshTeam(ctx, teamID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return
		}
		s.logger.WarnContext(ctx, "team refresh failed", "team_id", teamID, "error", err)
		return
	}

	s.broadcaster.BroadcastTeamUpdate(teamID, update)
	s.notifications.Notify(ctx, teamID, notifyEvents)
}

// observedTeamIDs is the union of teams watched over a live connection
// and teams holding a push subscription.
func (s *PollService) observedTeamIDs() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, id := range s.broadcaster.TrackedTeamIDs() {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range s.notifications.TrackedTeamIDs() {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
