package httpapi

import (
	"fmt"
	"net/http"

	sonic "github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/fplive/fplive/internal/interfaces/livefeed"
	"github.com/fplive/fplive/internal/platform/logging"
	"github.com/fplive/fplive/internal/usecase"
)

const maxRequestBody = 64 << 10

// LiveEngine is the slice of the live-state service the HTTP surface
// needs: readiness gating and observer-driven state release.
type LiveEngine interface {
	Ready() bool
	Release(teamID string)
}

type Handler struct {
	engine        LiveEngine
	notifications *usecase.NotificationService
	hub           *livefeed.Hub
	upgrader      websocket.Upgrader
	logger        *logging.Logger
	validator     *validator.Validate
}

func NewHandler(
	engine LiveEngine,
	notifications *usecase.NotificationService,
	hub *livefeed.Hub,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		engine:        engine,
		notifications: notifications,
		hub:           hub,
		upgrader: websocket.Upgrader{
			// Cross-origin access control happens in the CORS middleware;
			// browsers cannot express WebSocket preflight anyway.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:    logger,
		validator: validator.New(),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	if !h.engine.Ready() {
		writeJSON(ctx, w, http.StatusServiceUnavailable, googleResponseEnvelope{
			APIVersion: googleAPIVersion,
			Data:       map[string]string{"status": "starting"},
		})
		return
	}
	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) GetVAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetVAPIDPublicKey")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{
		"publicKey": h.notifications.PublicKey(),
	})
}

type addSubscriptionRequest struct {
	TeamID       string                      `json:"teamId" validate:"required"`
	Subscription usecase.WebPushSubscription `json:"subscription" validate:"required"`
}

func (h *Handler) AddSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.AddSubscription")
	defer span.End()

	var req addSubscriptionRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := h.notifications.Subscribe(req.TeamID, req.Subscription); err != nil {
		h.logger.WarnContext(ctx, "add subscription failed", "team_id", req.TeamID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

type removeSubscriptionRequest struct {
	TeamID   string `json:"teamId" validate:"required"`
	Endpoint string `json:"endpoint" validate:"required,url"`
}

func (h *Handler) RemoveSubscription(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.RemoveSubscription")
	defer span.End()

	var req removeSubscriptionRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}

	h.notifications.Unsubscribe(req.TeamID, req.Endpoint)
	// Dropping the last observer releases the team's live state.
	h.engine.Release(req.TeamID)

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

func (h *Handler) LiveFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.engine.Ready() {
		writeError(ctx, w, fmt.Errorf("%w: engine is still starting", usecase.ErrDependencyUnavailable))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its error response.
		h.logger.WarnContext(ctx, "websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	h.hub.Register(conn)
}

func (h *Handler) decodeJSON(r *http.Request, target any) error {
	defer func() { _ = r.Body.Close() }()

	decoder := sonic.ConfigDefault.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: malformed request body", usecase.ErrInvalidInput)
	}
	if err := h.validator.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", usecase.ErrInvalidInput, err)
	}
	return nil
}
