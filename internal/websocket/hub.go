package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/match-lifecycle/internal/domain"
)

// Message types
const (
	MessageTypeMatchUpdate   = "match_update"
	MessageTypeRankingUpdate = "ranking_update"
	MessageTypeSubscribe     = "subscribe"
	MessageTypeUnsubscribe   = "unsubscribe"
	MessageTypePing          = "ping"
	MessageTypePong          = "pong"
	MessageTypeError         = "error"
)

// Channel prefixes. Every client is subscribed to its own player channel on connect.
const (
	matchPrefix  = "match:"
	regionPrefix = "region:"
	playerPrefix = "player:"
)

// MatchChannel names the channel carrying one match's transitions
func MatchChannel(matchID string) string { return matchPrefix + matchID }

// RegionChannel names the channel carrying a region's ranking
func RegionChannel(regionKey string) string { return regionPrefix + regionKey }

// PlayerChannel names a player's private channel
func PlayerChannel(playerID string) string { return playerPrefix + playerID }

// Message represents a WebSocket message
type Message struct {
	Type      string    `json:"type"`
	Channel   string    `json:"channel,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RankingUpdate contains a region's top players for broadcast
type RankingUpdate struct {
	Region  string                `json:"region"`
	Entries []domain.RankingEntry `json:"entries"`
}

// MatchAuthorizer decides whether a player may follow a match
type MatchAuthorizer func(ctx context.Context, matchID, playerID string) error

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	// Registered clients by channel
	clients map[string]map[*Client]bool

	// All connected clients
	allClients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Outbound messages
	broadcast chan *envelope

	// Subscription requests
	subscribe chan *subscriptionRequest

	// Unsubscription requests
	unsubscribe chan *subscriptionRequest

	authorize MatchAuthorizer

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriptionRequest struct {
	client  *Client
	channel string
}

// envelope is a message addressed to one or more channels
type envelope struct {
	channels []string
	message  *Message
}

// NewHub creates a new Hub. authorize guards match channels; nil lets nobody
// follow a match by id.
func NewHub(authorize MatchAuthorizer, logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	if authorize == nil {
		authorize = func(context.Context, string, string) error { return domain.ErrForbidden }
	}
	return &Hub{
		clients:     make(map[string]map[*Client]bool),
		allClients:  make(map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *envelope, 256),
		subscribe:   make(chan *subscriptionRequest, 64),
		unsubscribe: make(chan *subscriptionRequest, 64),
		authorize:   authorize,
		logger:      logger.With("component", "websocket_hub"),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.allClients[client] = true
			h.addLocked(client, PlayerChannel(client.playerID))
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id, "player_id", client.playerID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.allClients[client]; ok {
				delete(h.allClients, client)
				// Remove from all channel subscriptions
				for channel, clients := range h.clients {
					if _, ok := clients[client]; ok {
						delete(clients, client)
						if len(clients) == 0 {
							delete(h.clients, channel)
						}
					}
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id)

		case req := <-h.subscribe:
			h.mu.Lock()
			if h.allClients[req.client] {
				h.addLocked(req.client, req.channel)
			}
			h.mu.Unlock()
			h.logger.Debug("client subscribed", "client_id", req.client.id, "channel", req.channel)

		case req := <-h.unsubscribe:
			h.mu.Lock()
			if clients, ok := h.clients[req.channel]; ok {
				delete(clients, req.client)
				if len(clients) == 0 {
					delete(h.clients, req.channel)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unsubscribed", "client_id", req.client.id, "channel", req.channel)

		case env := <-h.broadcast:
			h.broadcastMessage(env)
		}
	}
}

func (h *Hub) addLocked(client *Client, channel string) {
	if _, ok := h.clients[channel]; !ok {
		h.clients[channel] = make(map[*Client]bool)
	}
	h.clients[channel][client] = true
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// broadcastMessage sends a message once to every client subscribed to any of its channels
func (h *Hub) broadcastMessage(env *envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(env.message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	sent := make(map[*Client]bool)
	for _, channel := range env.channels {
		for client := range h.clients[channel] {
			if sent[client] {
				continue
			}
			sent[client] = true
			select {
			case client.send <- data:
			default:
				// Client's buffer is full, skip
				h.logger.Warn("client buffer full, skipping", "client_id", client.id)
			}
		}
	}
}

func (h *Hub) enqueue(env *envelope) {
	select {
	case h.broadcast <- env:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", env.message.Type)
	}
}

// BroadcastMatchUpdate sends the match to its followers and to each participant's channel
func (h *Hub) BroadcastMatchUpdate(match *domain.Match) {
	ids := match.PlayerIDs()
	channels := []string{MatchChannel(match.ID)}
	for _, id := range ids {
		channels = append(channels, PlayerChannel(id))
	}
	h.enqueue(&envelope{
		channels: channels,
		message: &Message{
			Type:      MessageTypeMatchUpdate,
			Channel:   MatchChannel(match.ID),
			Data:      match,
			Timestamp: time.Now(),
		},
	})
}

// BroadcastRankingUpdate sends a region's top list to its subscribers
func (h *Hub) BroadcastRankingUpdate(regionKey string, entries []domain.RankingEntry) {
	h.enqueue(&envelope{
		channels: []string{RegionChannel(regionKey)},
		message: &Message{
			Type:    MessageTypeRankingUpdate,
			Channel: RegionChannel(regionKey),
			Data: RankingUpdate{
				Region:  regionKey,
				Entries: entries,
			},
			Timestamp: time.Now(),
		},
	})
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe checks the client may follow the channel and adds the subscription
func (h *Hub) Subscribe(ctx context.Context, client *Client, channel string) error {
	switch {
	case strings.HasPrefix(channel, regionPrefix) && len(channel) > len(regionPrefix):
	case strings.HasPrefix(channel, matchPrefix) && len(channel) > len(matchPrefix):
		if err := h.authorize(ctx, strings.TrimPrefix(channel, matchPrefix), client.playerID); err != nil {
			return err
		}
	case channel == PlayerChannel(client.playerID):
	default:
		return domain.ErrForbidden
	}

	h.subscribe <- &subscriptionRequest{
		client:  client,
		channel: channel,
	}
	return nil
}

// Unsubscribe removes a client from a channel
func (h *Hub) Unsubscribe(client *Client, channel string) {
	h.unsubscribe <- &subscriptionRequest{
		client:  client,
		channel: channel,
	}
}

// GetSubscriberCount returns the number of subscribers of a channel
func (h *Hub) GetSubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[channel])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.allClients)
}
