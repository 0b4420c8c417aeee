package fplapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"

	"github.com/fplive/fplive/internal/domain/fixture"
	"github.com/fplive/fplive/internal/domain/gameweek"
	"github.com/fplive/fplive/internal/domain/player"
	"github.com/fplive/fplive/internal/domain/scoring"
	"github.com/fplive/fplive/internal/domain/team"
	"github.com/fplive/fplive/internal/platform/logging"
	"github.com/fplive/fplive/internal/platform/resilience"
	"github.com/fplive/fplive/internal/usecase"
)

const (
	defaultBaseURL = "https://fantasy.premierleague.com/api"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 6 << 20
)

var errFPLTransient = crerr.New("fpl transient failure")

type ClientConfig struct {
	HTTPClient     *http.Client
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	Logger         *logging.Logger
	CircuitBreaker resilience.CircuitBreakerConfig
}

// Client is a read-only consumer of the upstream Fantasy Premier League
// API. All calls are idempotent GETs bounded by the client timeout.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	maxRetries     int
	logger         *logging.Logger
	breaker        *resilience.CircuitBreaker
	circuitEnabled bool
	flight         resilience.SingleFlight
}

func NewClient(cfg ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if httpClient.Timeout <= 0 {
		httpClient.Timeout = defaultTimeout
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	breakerCfg := resilience.NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)

	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		maxRetries:     max(cfg.MaxRetries, 0),
		logger:         logger,
		breaker:        resilience.NewCircuitBreaker(breakerCfg.FailureThreshold, breakerCfg.OpenTimeout, breakerCfg.HalfOpenMaxReq),
		circuitEnabled: breakerCfg.Enabled,
	}
}

func (c *Client) FetchBootstrap(ctx context.Context) (usecase.BootstrapData, error) {
	var envelope bootstrapEnvelope
	if err := c.doJSON(ctx, "/bootstrap-static/", &envelope); err != nil {
		return usecase.BootstrapData{}, fmt.Errorf("fetch bootstrap: %w", err)
	}
	if len(envelope.Events) == 0 || len(envelope.Elements) == 0 {
		return usecase.BootstrapData{}, fmt.Errorf("malformed bootstrap payload: events=%d elements=%d", len(envelope.Events), len(envelope.Elements))
	}

	out := usecase.BootstrapData{
		Gameweeks: make([]gameweek.Gameweek, 0, len(envelope.Events)),
		Clubs:     make([]player.Club, 0, len(envelope.Teams)),
		Players:   make([]player.Player, 0, len(envelope.Elements)),
	}
	for _, item := range envelope.Events {
		out.Gameweeks = append(out.Gameweeks, gameweek.Gameweek{
			ID:          item.ID,
			Name:        item.Name,
			IsCurrent:   item.IsCurrent,
			Finished:    item.Finished,
			DataChecked: item.DataChecked,
		})
	}
	for _, item := range envelope.Teams {
		out.Clubs = append(out.Clubs, player.Club{ID: item.ID, Name: item.Name, ShortName: item.ShortName})
	}
	for _, item := range envelope.Elements {
		position, err := player.FromElementType(item.ElementType)
		if err != nil {
			return usecase.BootstrapData{}, fmt.Errorf("malformed bootstrap element id=%d: %w", item.ID, err)
		}
		out.Players = append(out.Players, player.Player{
			ID:       item.ID,
			Name:     item.WebName,
			ClubID:   item.Team,
			Position: position,
		})
	}
	return out, nil
}

func (c *Client) FetchFixtures(ctx context.Context) ([]fixture.Fixture, error) {
	var items []fixtureItem
	if err := c.doJSON(ctx, "/fixtures/", &items); err != nil {
		return nil, fmt.Errorf("fetch fixtures: %w", err)
	}

	out := make([]fixture.Fixture, 0, len(items))
	for _, item := range items {
		f := fixture.Fixture{
			ID:        item.ID,
			Finished:  item.Finished,
			HomeClub:  item.TeamHome,
			AwayClub:  item.TeamAway,
			HomeScore: item.HomeScore,
			AwayScore: item.AwayScore,
		}
		if item.Event != nil {
			f.Gameweek = *item.Event
		}
		if item.Kickoff != nil && *item.Kickoff != "" {
			kickoff, err := time.Parse(time.RFC3339, *item.Kickoff)
			if err != nil {
				return nil, fmt.Errorf("malformed fixture kickoff id=%d: %w", item.ID, err)
			}
			f.KickoffAt = kickoff
		}
		out = append(out, f)
	}
	return out, nil
}

func (c *Client) FetchLiveStats(ctx context.Context, gw int) (map[int64]scoring.PlayerStats, error) {
	if gw <= 0 {
		return nil, fmt.Errorf("%w: gameweek must be greater than zero", usecase.ErrInvalidInput)
	}

	var envelope liveEnvelope
	if err := c.doJSON(ctx, fmt.Sprintf("/event/%d/live/", gw), &envelope); err != nil {
		return nil, fmt.Errorf("fetch live stats gameweek=%d: %w", gw, err)
	}
	if envelope.Elements == nil {
		return nil, fmt.Errorf("malformed live payload gameweek=%d: missing elements", gw)
	}

	out := make(map[int64]scoring.PlayerStats, len(envelope.Elements))
	for _, item := range envelope.Elements {
		out[item.ID] = scoring.PlayerStats{
			Minutes:         item.Stats.Minutes,
			GoalsScored:     item.Stats.GoalsScored,
			Assists:         item.Stats.Assists,
			CleanSheets:     item.Stats.CleanSheets,
			GoalsConceded:   item.Stats.GoalsConceded,
			OwnGoals:        item.Stats.OwnGoals,
			PenaltiesSaved:  item.Stats.PenaltiesSaved,
			PenaltiesMissed: item.Stats.PenaltiesMissed,
			YellowCards:     item.Stats.YellowCards,
			RedCards:        item.Stats.RedCards,
			Saves:           item.Stats.Saves,
			Bonus:           item.Stats.Bonus,
			TotalPoints:     item.Stats.TotalPoints,
		}
	}
	return out, nil
}

func (c *Client) FetchTeamPicks(ctx context.Context, teamID string, gw int) (usecase.TeamPicksData, error) {
	if strings.TrimSpace(teamID) == "" {
		return usecase.TeamPicksData{}, fmt.Errorf("%w: team id is required", usecase.ErrInvalidInput)
	}
	if gw <= 0 {
		return usecase.TeamPicksData{}, fmt.Errorf("%w: gameweek must be greater than zero", usecase.ErrInvalidInput)
	}

	var envelope picksEnvelope
	path := fmt.Sprintf("/entry/%s/event/%d/picks/", strings.TrimSpace(teamID), gw)
	if err := c.doJSON(ctx, path, &envelope); err != nil {
		return usecase.TeamPicksData{}, fmt.Errorf("fetch picks team=%s gameweek=%d: %w", teamID, gw, err)
	}
	if len(envelope.Picks) == 0 {
		return usecase.TeamPicksData{}, fmt.Errorf("malformed picks payload team=%s gameweek=%d: empty picks", teamID, gw)
	}

	out := usecase.TeamPicksData{
		Picks: make([]team.Pick, 0, len(envelope.Picks)),
		History: team.GameweekHistory{
			Gameweek:    envelope.EntryHistory.Event,
			Points:      envelope.EntryHistory.Points,
			TotalPoints: envelope.EntryHistory.TotalPoints,
			OverallRank: envelope.EntryHistory.OverallRank,
		},
	}
	for _, item := range envelope.Picks {
		out.Picks = append(out.Picks, team.Pick{
			PlayerID:      item.Element,
			SquadPosition: item.Position,
			Multiplier:    item.Multiplier,
			IsCaptain:     item.IsCaptain,
			IsViceCaptain: item.IsViceCaptain,
		})
	}
	return out, nil
}

func (c *Client) FetchManager(ctx context.Context, teamID string) (team.Manager, error) {
	if strings.TrimSpace(teamID) == "" {
		return team.Manager{}, fmt.Errorf("%w: team id is required", usecase.ErrInvalidInput)
	}

	var envelope entryEnvelope
	path := fmt.Sprintf("/entry/%s/", strings.TrimSpace(teamID))
	if err := c.doJSON(ctx, path, &envelope); err != nil {
		return team.Manager{}, fmt.Errorf("fetch manager team=%s: %w", teamID, err)
	}
	if envelope.ID <= 0 {
		return team.Manager{}, fmt.Errorf("malformed entry payload team=%s: missing id", teamID)
	}

	name := strings.TrimSpace(envelope.PlayerFirstName + " " + envelope.PlayerLastName)
	return team.Manager{
		Name:          name,
		TeamName:      envelope.Name,
		OverallRank:   envelope.SummaryOverallRank,
		OverallPoints: envelope.SummaryOverallPoints,
	}, nil
}

func (c *Client) doJSON(ctx context.Context, path string, target any) error {
	if c.circuitEnabled {
		if err := c.breaker.Allow(); err != nil {
			c.logger.WarnContext(ctx, "fpl circuit breaker rejected request", "state", c.breaker.State(), "path", path)
			return fmt.Errorf("%w: upstream data source is temporarily unavailable", usecase.ErrDependencyUnavailable)
		}
	}

	fullURL := c.baseURL + path
	out, err, _ := c.flight.Do(path, func() (any, error) {
		raw, reqErr := c.executeRequest(ctx, fullURL)
		if c.circuitEnabled {
			if reqErr != nil && crerr.Is(reqErr, errFPLTransient) {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
		}
		return raw, reqErr
	})
	if err != nil {
		return err
	}

	raw, ok := out.([]byte)
	if !ok {
		return fmt.Errorf("unexpected response payload type %T", out)
	}

	if err := sonic.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode upstream payload: %w", err)
	}
	return nil
}

func (c *Client) executeRequest(ctx context.Context, fullURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: send request: %v", errFPLTransient, err)
		} else {
			raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			_ = resp.Body.Close()
			switch {
			case readErr != nil:
				lastErr = fmt.Errorf("%w: read response body: %v", errFPLTransient, readErr)
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return raw, nil
			case isRetryableStatus(resp.StatusCode):
				lastErr = fmt.Errorf("%w: upstream status=%d body=%s", errFPLTransient, resp.StatusCode, abbreviateBody(raw))
			default:
				return nil, fmt.Errorf("upstream status=%d body=%s", resp.StatusCode, abbreviateBody(raw))
			}
		}

		if attempt == c.maxRetries {
			break
		}
		backoff := time.Duration(attempt+1) * time.Second
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("upstream request failed")
	}
	c.logger.WarnContext(ctx, "fpl request failed", "url", fullURL, "error", lastErr)
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

func abbreviateBody(raw []byte) string {
	const limit = 256
	body := strings.TrimSpace(string(raw))
	if len(body) > limit {
		return body[:limit] + "..."
	}
	return body
}
