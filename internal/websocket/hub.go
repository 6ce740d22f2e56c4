package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"aprs-friend-alert/internal/follow"
	"aprs-friend-alert/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	moduleName     = "HUB"
	ClusterChannel = "cluster_events"
)

type frame struct {
	Type string          `json:"type"`
	Data follow.Snapshot `json:"data"`
}

type relayPayload struct {
	Origin  string          `json:"origin"`
	Message json.RawMessage `json:"message"`
}

// Hub fans follow snapshots out to every connected status viewer. With a
// Redis client it also relays them over ClusterChannel so viewers attached to
// a mirror process see the same stream.
type Hub struct {
	clients map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client

	mu   sync.RWMutex
	last []byte

	rdb        *redis.Client
	instanceID string
	done       chan struct{}

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		done:       make(chan struct{}),
		logger:     log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				close(client.Send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if h.last != nil {
				client.Send <- h.last
			}
			h.mu.Unlock()
			h.logger.Info(moduleName, "Viewer connected", map[string]interface{}{"conn_id": client.ID.String()})

		case client := <-h.unregister:
			h.mu.Lock()
			if c, ok := h.clients[client.ID]; ok && c == client {
				delete(h.clients, client.ID)
				close(client.Send)
				h.logger.Info(moduleName, "Viewer disconnected", map[string]interface{}{"conn_id": client.ID.String()})
			}
			h.mu.Unlock()
		}
	}
}

// Publish is the follow session observer. It never blocks on a slow viewer.
func (h *Hub) Publish(snap follow.Snapshot) {
	data, err := json.Marshal(frame{Type: "follow_snapshot", Data: snap})
	if err != nil {
		h.logger.Warn(moduleName, "Failed to encode snapshot", map[string]interface{}{"error": err.Error()})
		return
	}

	h.deliverLocal(data)

	if h.rdb != nil {
		payload, _ := json.Marshal(relayPayload{Origin: h.instanceID, Message: data})
		if err := h.rdb.Publish(context.Background(), ClusterChannel, payload).Err(); err != nil {
			h.logger.Warn(moduleName, "Failed to relay snapshot", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) deliverLocal(data []byte) {
	var slow []*Client

	h.mu.Lock()
	h.last = data
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.Unlock()

	for _, client := range slow {
		h.logger.Warn(moduleName, "Viewer buffer full, dropping connection", map[string]interface{}{"conn_id": client.ID.String()})
		h.drop(client)
	}
}

// drop unregisters c without blocking once the hub has stopped.
func (h *Hub) drop(c *Client) {
	go func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload relayPayload
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn(moduleName, "Ignoring malformed relay message", map[string]interface{}{"error": err.Error()})
				continue
			}
			if payload.Origin == h.instanceID {
				continue
			}
			h.deliverLocal(payload.Message)
		}
	}
}
