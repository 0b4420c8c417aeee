package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"

	"github.com/fplive/fplive/internal/domain/scoring"
	"github.com/fplive/fplive/internal/platform/logging"
)

type fakeSender struct {
	mu        sync.Mutex
	delivered map[string][][]byte
	failGone  map[string]bool
	failOnce  map[string]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		delivered: map[string][][]byte{},
		failGone:  map[string]bool{},
		failOnce:  map[string]bool{},
	}
}

func (f *fakeSender) PublicKey() string { return "test-public-key" }

func (f *fakeSender) Send(_ context.Context, sub WebPushSubscription, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGone[sub.Endpoint] {
		return fmt.Errorf("%w: status=410", ErrEndpointGone)
	}
	if f.failOnce[sub.Endpoint] {
		delete(f.failOnce, sub.Endpoint)
		return fmt.Errorf("push service rejected delivery: status=500")
	}
	f.delivered[sub.Endpoint] = append(f.delivered[sub.Endpoint], payload)
	return nil
}

func (f *fakeSender) deliveredTo(endpoint string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delivered[endpoint]
}

func subscription(endpoint string) WebPushSubscription {
	sub := WebPushSubscription{Endpoint: endpoint}
	sub.Keys.P256dh = "p256dh-key"
	sub.Keys.Auth = "auth-secret"
	return sub
}

func goalEvent() scoring.Event {
	return scoring.Event{
		Type:       scoring.EventGoal,
		Player:     "Saka",
		Points:     5,
		OccurredAt: time.Date(2026, 8, 29, 16, 30, 0, 0, time.UTC),
	}
}

func TestNotificationService_SubscribeIsIdempotent(t *testing.T) {
	t.Parallel()

	svc := NewNotificationService(newFakeSender(), logging.NewNop())
	if err := svc.Subscribe("777", subscription("https://push/a")); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	if err := svc.Subscribe("777", subscription("https://push/a")); err != nil {
		t.Fatalf("duplicate Subscribe returned error: %v", err)
	}
	if got := svc.SubscriptionCount("777"); got != 1 {
		t.Fatalf("expected 1 subscription, got %d", got)
	}
}

func TestNotificationService_SubscribeValidatesInput(t *testing.T) {
	t.Parallel()

	svc := NewNotificationService(newFakeSender(), logging.NewNop())
	if err := svc.Subscribe("", subscription("https://push/a")); err == nil {
		t.Fatal("expected an error for a missing team id")
	}
	if err := svc.Subscribe("777", WebPushSubscription{}); err == nil {
		t.Fatal("expected an error for an empty subscription")
	}
}

func TestNotificationService_UnsubscribeDropsEmptyTeam(t *testing.T) {
	t.Parallel()

	svc := NewNotificationService(newFakeSender(), logging.NewNop())
	if err := svc.Subscribe("777", subscription("https://push/a")); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	svc.Unsubscribe("777", "https://push/unknown")
	if got := svc.SubscriptionCount("777"); got != 1 {
		t.Fatalf("unknown endpoint removal must be a no-op, got %d", got)
	}

	svc.Unsubscribe("777", "https://push/a")
	if got := svc.TrackedTeamIDs(); len(got) != 0 {
		t.Fatalf("team without endpoints must disappear, still tracking %v", got)
	}
}

func TestNotificationService_NotifyDeliversRenderedPayload(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	svc := NewNotificationService(sender, logging.NewNop())
	if err := svc.Subscribe("777", subscription("https://push/a")); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	svc.Notify(context.Background(), "777", []scoring.Event{goalEvent()})

	got := sender.deliveredTo("https://push/a")
	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}

	var payload pushPayload
	if err := sonic.Unmarshal(got[0], &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Title != "⚽ Goal!" {
		t.Fatalf("unexpected title %q", payload.Title)
	}
	if payload.Body != "Saka +5 pts" {
		t.Fatalf("unexpected body %q", payload.Body)
	}
	if payload.Data.Type != "EVENT" || payload.Data.Event.Player != "Saka" || payload.Data.Event.Points != 5 {
		t.Fatalf("payload data mapped badly: %+v", payload.Data)
	}
}

func TestNotificationService_NotifySkipsUnmappedKinds(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	svc := NewNotificationService(sender, logging.NewNop())
	if err := svc.Subscribe("777", subscription("https://push/a")); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	svc.Notify(context.Background(), "777", []scoring.Event{
		{Type: scoring.EventMinutesPlayed, Player: "Saka", Points: 2},
		{Type: scoring.EventGoalsConceded, Player: "Raya", Points: -1},
		{Type: scoring.EventSave, Player: "Raya", Points: 1},
	})

	if got := sender.deliveredTo("https://push/a"); len(got) != 0 {
		t.Fatalf("unmapped kinds must not deliver, got %d payloads", len(got))
	}
}

func TestNotificationService_NotifyUnknownTeamIsNoop(t *testing.T) {
	t.Parallel()

	svc := NewNotificationService(newFakeSender(), logging.NewNop())
	svc.Notify(context.Background(), "nope", []scoring.Event{goalEvent()})
}

func TestNotificationService_PrunesGoneEndpointOnly(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	sender.failGone["https://push/dead"] = true

	svc := NewNotificationService(sender, logging.NewNop())
	for _, endpoint := range []string{"https://push/dead", "https://push/live"} {
		if err := svc.Subscribe("777", subscription(endpoint)); err != nil {
			t.Fatalf("Subscribe returned error: %v", err)
		}
	}

	svc.Notify(context.Background(), "777", []scoring.Event{goalEvent()})

	if got := svc.SubscriptionCount("777"); got != 1 {
		t.Fatalf("expected the dead endpoint pruned, %d subscriptions left", got)
	}
	if got := sender.deliveredTo("https://push/live"); len(got) != 1 {
		t.Fatalf("sibling endpoint must still receive the payload, got %d", len(got))
	}
}

func TestNotificationService_PruneReleasesTeam(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	sender.failGone["https://push/dead"] = true

	svc := NewNotificationService(sender, logging.NewNop())
	var mu sync.Mutex
	var released []string
	svc.SetReleaseFunc(func(teamID string) {
		mu.Lock()
		defer mu.Unlock()
		released = append(released, teamID)
	})

	if err := svc.Subscribe("777", subscription("https://push/dead")); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	svc.Notify(context.Background(), "777", []scoring.Event{goalEvent()})

	mu.Lock()
	defer mu.Unlock()
	if len(released) != 1 || released[0] != "777" {
		t.Fatalf("pruning must release the team, released %v", released)
	}
}

func TestNotificationService_TransientFailureKeepsSubscription(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	sender.failOnce["https://push/flaky"] = true

	svc := NewNotificationService(sender, logging.NewNop())
	if err := svc.Subscribe("777", subscription("https://push/flaky")); err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	svc.Notify(context.Background(), "777", []scoring.Event{goalEvent()})
	if got := svc.SubscriptionCount("777"); got != 1 {
		t.Fatalf("transient failure must not prune, %d subscriptions left", got)
	}

	svc.Notify(context.Background(), "777", []scoring.Event{goalEvent()})
	if got := sender.deliveredTo("https://push/flaky"); len(got) != 1 {
		t.Fatalf("expected the next cycle to deliver, got %d", len(got))
	}
}

func TestNotificationService_PublicKey(t *testing.T) {
	t.Parallel()

	svc := NewNotificationService(newFakeSender(), logging.NewNop())
	if got := svc.PublicKey(); got != "test-public-key" {
		t.Fatalf("unexpected public key %q", got)
	}
}
