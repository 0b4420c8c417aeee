package app

import (
	"fmt"
	"net/http"

	"github.com/fplive/fplive/external/fplapi"
	"github.com/fplive/fplive/internal/config"
	"github.com/fplive/fplive/internal/infrastructure/push"
	"github.com/fplive/fplive/internal/interfaces/httpapi"
	"github.com/fplive/fplive/internal/interfaces/livefeed"
	"github.com/fplive/fplive/internal/platform/logging"
	"github.com/fplive/fplive/internal/platform/resilience"
	"github.com/fplive/fplive/internal/usecase"
)

// App bundles the long-lived components main has to start and stop.
type App struct {
	Server        *http.Server
	Poller        *usecase.PollService
	Hub           *livefeed.Hub
	Notifications *usecase.NotificationService
}

func New(cfg config.Config, logger *logging.Logger) (*App, error) {
	fplClient := fplapi.NewClient(fplapi.ClientConfig{
		BaseURL:    cfg.FPLBaseURL,
		Timeout:    cfg.FPLTimeout,
		MaxRetries: cfg.FPLMaxRetries,
		Logger:     logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.FPLCircuitEnabled,
			FailureThreshold: cfg.FPLCircuitFailureCount,
			OpenTimeout:      cfg.FPLCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.FPLCircuitHalfOpenMaxReq,
		},
	})

	sender, err := push.NewSender(push.Config{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subscriber:      cfg.VAPIDSubscriber,
		Timeout:         cfg.PushTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("build push sender: %w", err)
	}

	state := usecase.NewLiveStateService(fplClient, logger)
	notifications := usecase.NewNotificationService(sender, logger)
	hub := livefeed.NewHub(state, logger)

	// A team stays tracked while anyone observes it, over either channel.
	state.SetObserverCounter(func(teamID string) int {
		return hub.ConnectionCount(teamID) + notifications.SubscriptionCount(teamID)
	})
	// Pruning a dead endpoint may remove a team's last observer.
	notifications.SetReleaseFunc(state.Release)

	poller := usecase.NewPollService(state, notifications, hub, usecase.PollServiceConfig{
		LiveInterval: cfg.PollLiveInterval,
		IdleInterval: cfg.PollIdleInterval,
		Workers:      cfg.PollWorkers,
	}, logger)

	handler := httpapi.NewHandler(state, notifications, hub, logger)
	router := httpapi.NewRouter(handler, logger, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if server.Addr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	return &App{
		Server:        server,
		Poller:        poller,
		Hub:           hub,
		Notifications: notifications,
	}, nil
}
