package fplapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fplive/fplive/internal/domain/player"
	"github.com/fplive/fplive/internal/platform/logging"
	"github.com/fplive/fplive/internal/platform/resilience"
	"github.com/fplive/fplive/internal/usecase"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		BaseURL:    server.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 0,
		Logger:     logging.NewNop(),
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 2,
			OpenTimeout:      time.Minute,
			HalfOpenMaxReq:   1,
		},
	})
	return client, server
}

func TestClient_FetchBootstrap(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bootstrap-static/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"events": [
				{"id": 1, "name": "Gameweek 1", "is_current": false, "finished": true, "data_checked": true},
				{"id": 2, "name": "Gameweek 2", "is_current": true, "finished": false, "data_checked": false}
			],
			"teams": [{"id": 3, "name": "Arsenal", "short_name": "ARS"}],
			"elements": [
				{"id": 100, "web_name": "Saka", "team": 3, "element_type": 3},
				{"id": 101, "web_name": "Raya", "team": 3, "element_type": 1}
			]
		}`))
	}))

	got, err := client.FetchBootstrap(context.Background())
	if err != nil {
		t.Fatalf("FetchBootstrap returned error: %v", err)
	}
	if len(got.Gameweeks) != 2 || len(got.Clubs) != 1 || len(got.Players) != 2 {
		t.Fatalf("unexpected bootstrap sizes: %d gameweeks, %d clubs, %d players", len(got.Gameweeks), len(got.Clubs), len(got.Players))
	}
	if !got.Gameweeks[1].IsCurrent {
		t.Fatalf("expected gameweek 2 to be current")
	}
	if got.Players[0].Position != player.PositionMidfielder {
		t.Fatalf("expected Saka to map to midfielder, got %s", got.Players[0].Position)
	}
	if got.Players[1].Position != player.PositionGoalkeeper {
		t.Fatalf("expected Raya to map to goalkeeper, got %s", got.Players[1].Position)
	}
}

func TestClient_FetchBootstrap_RejectsEmptyPayload(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"events": [], "teams": [], "elements": []}`))
	}))

	if _, err := client.FetchBootstrap(context.Background()); err == nil {
		t.Fatal("expected an error for an empty bootstrap payload")
	}
}

func TestClient_FetchFixtures(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id": 11, "event": 2, "kickoff_time": "2026-08-29T14:00:00Z", "finished": false, "team_h": 3, "team_a": 7, "team_h_score": 1, "team_a_score": 0},
			{"id": 12, "event": null, "kickoff_time": null, "finished": false, "team_h": 4, "team_a": 5}
		]`))
	}))

	got, err := client.FetchFixtures(context.Background())
	if err != nil {
		t.Fatalf("FetchFixtures returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 fixtures, got %d", len(got))
	}
	if got[0].Gameweek != 2 || got[0].KickoffAt.IsZero() {
		t.Fatalf("fixture 11 mapped badly: %+v", got[0])
	}
	if got[0].HomeScore == nil || *got[0].HomeScore != 1 {
		t.Fatalf("expected home score 1, got %v", got[0].HomeScore)
	}
	if got[1].Gameweek != 0 || !got[1].KickoffAt.IsZero() {
		t.Fatalf("unscheduled fixture mapped badly: %+v", got[1])
	}
}

func TestClient_FetchLiveStats(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/event/4/live/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"elements": [
			{"id": 100, "stats": {"minutes": 90, "goals_scored": 1, "assists": 2, "bonus": 3, "total_points": 16}}
		]}`))
	}))

	got, err := client.FetchLiveStats(context.Background(), 4)
	if err != nil {
		t.Fatalf("FetchLiveStats returned error: %v", err)
	}
	stats, ok := got[100]
	if !ok {
		t.Fatal("expected stats for player 100")
	}
	if stats.Minutes != 90 || stats.GoalsScored != 1 || stats.Assists != 2 || stats.Bonus != 3 || stats.TotalPoints != 16 {
		t.Fatalf("stats mapped badly: %+v", stats)
	}
}

func TestClient_FetchLiveStats_InvalidGameweek(t *testing.T) {
	t.Parallel()

	client := NewClient(ClientConfig{Logger: logging.NewNop()})
	if _, err := client.FetchLiveStats(context.Background(), 0); !errors.Is(err, usecase.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestClient_FetchTeamPicks(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/entry/777/event/4/picks/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"entry_history": {"event": 4, "points": 61, "total_points": 250, "overall_rank": 120000},
			"picks": [
				{"element": 100, "position": 1, "multiplier": 1, "is_captain": false, "is_vice_captain": false},
				{"element": 200, "position": 12, "multiplier": 0, "is_captain": false, "is_vice_captain": true}
			]
		}`))
	}))

	got, err := client.FetchTeamPicks(context.Background(), "777", 4)
	if err != nil {
		t.Fatalf("FetchTeamPicks returned error: %v", err)
	}
	if got.History.Points != 61 || got.History.OverallRank != 120000 {
		t.Fatalf("history mapped badly: %+v", got.History)
	}
	if len(got.Picks) != 2 {
		t.Fatalf("expected 2 picks, got %d", len(got.Picks))
	}
	if !got.Picks[0].IsStarter() {
		t.Fatal("pick at squad position 1 should be a starter")
	}
	if got.Picks[1].IsStarter() {
		t.Fatal("pick at squad position 12 should be on the bench")
	}
}

func TestClient_FetchManager(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": 777,
			"player_first_name": "Sam",
			"player_last_name": "Carter",
			"name": "Carter XI",
			"summary_overall_points": 250,
			"summary_overall_rank": 120000
		}`))
	}))

	got, err := client.FetchManager(context.Background(), "777")
	if err != nil {
		t.Fatalf("FetchManager returned error: %v", err)
	}
	if got.Name != "Sam Carter" || got.TeamName != "Carter XI" || got.OverallPoints != 250 {
		t.Fatalf("manager mapped badly: %+v", got)
	}
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id": 777, "name": "Carter XI"}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		BaseURL:    server.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		Logger:     logging.NewNop(),
	})

	if _, err := client.FetchManager(context.Background(), "777"); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", got)
	}
}

func TestClient_NonRetryableStatusFailsFast(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		BaseURL:    server.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 3,
		Logger:     logging.NewNop(),
	})

	if _, err := client.FetchManager(context.Background(), "777"); err == nil {
		t.Fatal("expected an error for status 404")
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single upstream call, got %d", got)
	}
}

func TestClient_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		BaseURL:    server.URL,
		Timeout:    2 * time.Second,
		MaxRetries: 0,
		Logger:     logging.NewNop(),
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          true,
			FailureThreshold: 2,
			OpenTimeout:      time.Minute,
			HalfOpenMaxReq:   1,
		},
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.FetchFixtures(ctx); err == nil {
			t.Fatal("expected upstream failure")
		}
	}
	if _, err := client.FetchFixtures(ctx); !errors.Is(err, usecase.ErrDependencyUnavailable) {
		t.Fatalf("expected ErrDependencyUnavailable once the circuit is open, got %v", err)
	}
}
