// Package push delivers Web Push notifications signed with the process-wide
// VAPID key pair.
package push

import (
	"context"
	"fmt"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	crerr "github.com/cockroachdb/errors"

	"github.com/fplive/fplive/internal/usecase"
)

const (
	defaultTimeout = 10 * time.Second
	defaultTTL     = 60
)

type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	// Subscriber is the contact claim required by the push services,
	// a mailto: or https: URL identifying the sender.
	Subscriber string
	Timeout    time.Duration
}

// Sender implements usecase.PushSender over the Web Push protocol.
type Sender struct {
	publicKey  string
	privateKey string
	subscriber string
	httpClient *http.Client
}

// NewSender fails when the VAPID key pair is not configured; the process
// must refuse to start rather than silently drop notifications.
func NewSender(cfg Config) (*Sender, error) {
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		return nil, fmt.Errorf("vapid key pair is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Sender{
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		subscriber: cfg.Subscriber,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (s *Sender) PublicKey() string {
	return s.publicKey
}

// Send pushes one payload to one endpoint. A 404 or 410 from the push
// service wraps usecase.ErrEndpointGone so the caller prunes the
// subscription; every other failure is transient from the caller's view.
func (s *Sender) Send(ctx context.Context, sub usecase.WebPushSubscription, payload []byte) error {
	target := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, target, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             defaultTTL,
		HTTPClient:      s.httpClient,
	})
	if err != nil {
		return crerr.Wrap(err, "send web push")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%w: status=%d", usecase.ErrEndpointGone, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service rejected delivery: status=%d", resp.StatusCode)
	default:
		return nil
	}
}
