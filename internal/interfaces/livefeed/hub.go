// Package livefeed keeps the registry of live WebSocket viewers and fans
// completed per-team snapshots out to them.
package livefeed

import (
	"context"
	"sort"
	"sync"

	sonic "github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/fplive/fplive/internal/platform/logging"
	"github.com/fplive/fplive/internal/usecase"
)

const (
	messageTypeInitial = "initial"
	messageTypeUpdate  = "update"
)

type serverMessage struct {
	Type string             `json:"type"`
	Data usecase.TeamUpdate `json:"data"`
}

// TeamStateSource creates or returns live state for a team at
// registration time and releases it when the last viewer leaves.
type TeamStateSource interface {
	EnsureTeam(ctx context.Context, teamID string) (usecase.TeamUpdate, error)
	Release(teamID string)
}

// Hub owns every open live connection and the team-to-connections index.
// Connections register by sending a team id; a connection watches at most
// one team at a time.
type Hub struct {
	state  TeamStateSource
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	byTeam  map[string]map[*Client]struct{}
}

func NewHub(state TeamStateSource, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		state:   state,
		logger:  logger,
		clients: map[*Client]struct{}{},
		byTeam:  map[string]map[*Client]struct{}{},
	}
}

// Register adopts an upgraded connection and starts its pumps.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := newClient(uuid.NewString(), conn, h, h.logger)

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("connection opened", "connection_id", c.id, "connections", total)

	go c.writePump()
	go c.readPump()
	return c
}

// bind associates a connection with a team, ensuring the team's state
// exists and replying with a one-time initial snapshot. Re-registering
// for another team moves the connection between index entries.
func (h *Hub) bind(c *Client, teamID string) {
	previous := c.team()
	if previous == teamID {
		return
	}

	h.mu.Lock()
	if previous != "" {
		h.dropFromTeamLocked(c, previous)
	}
	set, ok := h.byTeam[teamID]
	if !ok {
		set = map[*Client]struct{}{}
		h.byTeam[teamID] = set
	}
	set[c] = struct{}{}
	c.setTeam(teamID)
	h.mu.Unlock()

	if previous != "" {
		h.state.Release(previous)
	}

	update, err := h.state.EnsureTeam(context.Background(), teamID)
	if err != nil {
		h.logger.Warn("could not load initial team state", "connection_id", c.id, "team_id", teamID, "error", err)
		return
	}
	frame, err := sonic.Marshal(serverMessage{Type: messageTypeInitial, Data: update})
	if err != nil {
		h.logger.Error("marshal initial snapshot", "team_id", teamID, "error", err)
		return
	}
	if c.trySend(frame) {
		c.markInitialSent()
	} else {
		h.logger.Warn("dropping initial snapshot, client buffer full", "connection_id", c.id, "team_id", teamID)
	}
	h.logger.Info("connection registered for team", "connection_id", c.id, "team_id", teamID)
}

// unregister removes a connection from the registry. Safe to call more
// than once for the same connection.
func (h *Hub) unregister(c *Client) {
	teamID := c.team()

	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	if teamID != "" {
		h.dropFromTeamLocked(c, teamID)
	}
	total := len(h.clients)
	h.mu.Unlock()

	c.close()
	h.logger.Info("connection closed", "connection_id", c.id, "team_id", teamID, "connections", total)

	// Release runs outside the hub lock: the observer counter it consults
	// calls back into ConnectionCount.
	if teamID != "" {
		h.state.Release(teamID)
	}
}

func (h *Hub) dropFromTeamLocked(c *Client, teamID string) {
	set, ok := h.byTeam[teamID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.byTeam, teamID)
	}
}

// BroadcastTeamUpdate sends the snapshot to every viewer of the team,
// marshaled once. Viewers that cannot keep up are disconnected.
func (h *Hub) BroadcastTeamUpdate(teamID string, update usecase.TeamUpdate) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.byTeam[teamID]))
	for c := range h.byTeam[teamID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	updateFrame, err := sonic.Marshal(serverMessage{Type: messageTypeUpdate, Data: update})
	if err != nil {
		h.logger.Error("marshal team update", "team_id", teamID, "error", err)
		return
	}

	// A viewer whose registration raced a failed state load is still owed
	// its initial snapshot; the first broadcast it receives doubles as it.
	var initialFrame []byte
	for _, c := range targets {
		frame := updateFrame
		owedInitial := c.needsInitial()
		if owedInitial {
			if initialFrame == nil {
				initialFrame, err = sonic.Marshal(serverMessage{Type: messageTypeInitial, Data: update})
				if err != nil {
					h.logger.Error("marshal initial snapshot", "team_id", teamID, "error", err)
					continue
				}
			}
			frame = initialFrame
		}
		if !c.trySend(frame) {
			h.logger.Warn("disconnecting slow client", "connection_id", c.id, "team_id", teamID)
			go h.unregister(c)
			continue
		}
		if owedInitial {
			c.markInitialSent()
		}
	}
}

// TrackedTeamIDs lists teams with at least one live viewer.
func (h *Hub) TrackedTeamIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.byTeam))
	for id := range h.byTeam {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ConnectionCount reports the number of live viewers of one team.
func (h *Hub) ConnectionCount(teamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byTeam[teamID])
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = map[*Client]struct{}{}
	h.byTeam = map[string]map[*Client]struct{}{}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	h.logger.Info("live feed shut down", "connections", len(clients))
}
