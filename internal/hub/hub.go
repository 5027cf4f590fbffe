package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

type Subscription struct {
	Channel string
	Branch  string
	Service string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  zerolog.Logger
}

type SubscribeMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
	Branch  string `json:"branch"`
	Service string `json:"service"`
	Token   string `json:"token,omitempty"`
}

func New(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast hands payload to every matching client without blocking. Clients
// whose buffer is full miss the message.
func (h *Hub) Broadcast(payload []byte, meta Subscription) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, meta) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("channel", meta.Channel).Msg("drop message")
		}
	}
}

// match requires a channel; branch and service narrow it when set.
func match(sub Subscription, meta Subscription) bool {
	if sub.Channel == "" || sub.Channel != meta.Channel {
		return false
	}
	if sub.Branch != "" && meta.Branch != sub.Branch {
		return false
	}
	if sub.Service != "" && meta.Service != sub.Service {
		return false
	}
	return true
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
