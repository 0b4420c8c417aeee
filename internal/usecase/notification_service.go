package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	sonic "github.com/bytedance/sonic"
	"github.com/sourcegraph/conc"
	"github.com/valyala/bytebufferpool"

	"github.com/fplive/fplive/internal/domain/scoring"
	"github.com/fplive/fplive/internal/platform/logging"
)

const notificationIcon = "/icons/icon-192.png"

// WebPushSubscription is the browser-side subscription descriptor as
// produced by PushManager.subscribe.
type WebPushSubscription struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
}

// PushSender is the transport that delivers one rendered payload to one
// endpoint. A permanently invalid endpoint wraps ErrEndpointGone.
type PushSender interface {
	PublicKey() string
	Send(ctx context.Context, sub WebPushSubscription, payload []byte) error
}

type notificationTemplate struct {
	title string
	body  func(e scoring.Event) string
}

func playerPointsBody(e scoring.Event) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString(e.Player)
	_, _ = buf.WriteString(" ")
	if e.Points >= 0 {
		_ = buf.WriteByte('+')
	}
	_, _ = buf.WriteString(strconv.Itoa(e.Points))
	_, _ = buf.WriteString(" pts")
	return buf.String()
}

// notificationTemplates maps event kinds to push copy. Kinds absent from
// the map (minutes played, goals conceded, saves) produce no notification.
var notificationTemplates = map[scoring.EventType]notificationTemplate{
	scoring.EventGoal:        {title: "⚽ Goal!", body: playerPointsBody},
	scoring.EventAssist:      {title: "👟 Assist!", body: playerPointsBody},
	scoring.EventCleanSheet:  {title: "🧤 Clean Sheet", body: playerPointsBody},
	scoring.EventPenaltySave: {title: "🧤 Penalty Save!", body: playerPointsBody},
	scoring.EventPenaltyMiss: {title: "❌ Penalty Miss", body: playerPointsBody},
	scoring.EventOwnGoal:     {title: "🙈 Own Goal", body: playerPointsBody},
	scoring.EventYellowCard:  {title: "🟨 Yellow Card", body: playerPointsBody},
	scoring.EventRedCard:     {title: "🟥 Red Card", body: playerPointsBody},
	scoring.EventBonus:       {title: "⭐ Bonus Points", body: playerPointsBody},
}

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Data  struct {
		Type  string          `json:"type"`
		Event pushPayloadItem `json:"event"`
	} `json:"data"`
}

type pushPayloadItem struct {
	Type   scoring.EventType `json:"type"`
	Player string            `json:"player"`
	Points int               `json:"points"`
}

// NotificationService keeps per-team push subscriptions unique by
// endpoint and fans deliveries out to them on every new scoring event.
type NotificationService struct {
	sender  PushSender
	logger  *logging.Logger
	release func(teamID string)

	mu   sync.Mutex
	subs map[string]map[string]WebPushSubscription
}

func NewNotificationService(sender PushSender, logger *logging.Logger) *NotificationService {
	if logger == nil {
		logger = logging.Default()
	}
	return &NotificationService{
		sender:  sender,
		logger:  logger,
		release: func(string) {},
		subs:    map[string]map[string]WebPushSubscription{},
	}
}

// SetReleaseFunc installs the wiring-time callback invoked after an
// endpoint is pruned, so a team whose last observer was a dead
// subscription has its live state evicted. Must be called before the
// first poll cycle.
func (s *NotificationService) SetReleaseFunc(fn func(teamID string)) {
	if fn != nil {
		s.release = fn
	}
}

// PublicKey returns the process-wide VAPID public key clients use to
// construct subscriptions.
func (s *NotificationService) PublicKey() string {
	return s.sender.PublicKey()
}

// Subscribe records one endpoint for a team. Re-adding an endpoint the
// team already has is a no-op.
func (s *NotificationService) Subscribe(teamID string, sub WebPushSubscription) error {
	if teamID == "" {
		return fmt.Errorf("%w: team id is required", ErrInvalidInput)
	}
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return fmt.Errorf("%w: subscription endpoint and keys are required", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	endpoints, ok := s.subs[teamID]
	if !ok {
		endpoints = map[string]WebPushSubscription{}
		s.subs[teamID] = endpoints
	}
	if _, exists := endpoints[sub.Endpoint]; exists {
		return nil
	}
	endpoints[sub.Endpoint] = sub
	s.logger.Info("push subscription added", "team_id", teamID, "subscriptions", len(endpoints))
	return nil
}

// Unsubscribe drops one endpoint; absent endpoints are a no-op. The team
// entry disappears when its last endpoint is removed.
func (s *NotificationService) Unsubscribe(teamID, endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribeLocked(teamID, endpoint)
}

func (s *NotificationService) unsubscribeLocked(teamID, endpoint string) {
	endpoints, ok := s.subs[teamID]
	if !ok {
		return
	}
	if _, exists := endpoints[endpoint]; !exists {
		return
	}
	delete(endpoints, endpoint)
	if len(endpoints) == 0 {
		delete(s.subs, teamID)
	}
	s.logger.Info("push subscription removed", "team_id", teamID, "subscriptions", len(endpoints))
}

// SubscriptionCount reports how many endpoints a team has.
func (s *NotificationService) SubscriptionCount(teamID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[teamID])
}

// TrackedTeamIDs lists teams with at least one subscription.
func (s *NotificationService) TrackedTeamIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subs))
	for id := range s.subs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Notify renders and delivers one notification per mapped event to every
// subscription of the team, concurrently. Endpoints reported permanently
// gone are pruned; any other failure is logged and ignored. An unknown
// team id is a no-op.
func (s *NotificationService) Notify(ctx context.Context, teamID string, events []scoring.Event) {
	ctx, span := startUsecaseSpan(ctx, "NotificationService.Notify")
	defer span.End()

	if len(events) == 0 {
		return
	}

	s.mu.Lock()
	targets := make([]WebPushSubscription, 0, len(s.subs[teamID]))
	for _, sub := range s.subs[teamID] {
		targets = append(targets, sub)
	}
	s.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	payloads := make([][]byte, 0, len(events))
	for _, event := range events {
		payload, ok := renderPayload(event)
		if !ok {
			continue
		}
		payloads = append(payloads, payload)
	}
	if len(payloads) == 0 {
		return
	}

	var wg conc.WaitGroup
	for _, target := range targets {
		target := target
		wg.Go(func() {
			for _, payload := range payloads {
				if err := s.sender.Send(ctx, target, payload); err != nil {
					s.handleDeliveryError(ctx, teamID, target.Endpoint, err)
					return
				}
			}
		})
	}
	wg.Wait()
}

func (s *NotificationService) handleDeliveryError(ctx context.Context, teamID, endpoint string, err error) {
	if errors.Is(err, ErrEndpointGone) {
		s.mu.Lock()
		s.unsubscribeLocked(teamID, endpoint)
		s.mu.Unlock()
		// Outside the mutex: the release path consults the observer
		// counter, which calls back into SubscriptionCount.
		s.release(teamID)
		s.logger.InfoContext(ctx, "pruned dead push endpoint", "team_id", teamID, "endpoint", endpoint)
		return
	}
	s.logger.WarnContext(ctx, "push delivery failed", "team_id", teamID, "endpoint", endpoint, "error", err)
}

func renderPayload(event scoring.Event) ([]byte, bool) {
	tmpl, ok := notificationTemplates[event.Type]
	if !ok {
		return nil, false
	}

	payload := pushPayload{
		Title: tmpl.title,
		Body:  tmpl.body(event),
		Icon:  notificationIcon,
	}
	payload.Data.Type = "EVENT"
	payload.Data.Event = pushPayloadItem{
		Type:   event.Type,
		Player: event.Player,
		Points: event.Points,
	}

	raw, err := sonic.Marshal(payload)
	if err != nil {
		return nil, false
	}
	return raw, true
}
