package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"shiba/internal/game"
)

const (
	BROADCAST_BUFFER  = 256
	SUBSCRIBER_BUFFER = 64
	WRITE_TIMEOUT     = 10 * time.Second
)

// Message is the frame streamed to websocket subscribers.
type Message struct {
	Type   string `json:"type"`
	GameID int64  `json:"game_id,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub streams client notifications to UI websocket subscribers. Every
// subscriber gets frames in broadcast order; one that falls behind is
// dropped.
type Hub struct {
	subscribers map[*subscriber]struct{}
	broadcast   chan []byte
	closed      bool
	mu          sync.RWMutex
	log         zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		broadcast:   make(chan []byte, BROADCAST_BUFFER),
		log:         log.With().Str("component", "hub").Logger(),
	}
}

// Run fans queued broadcasts out until ctx is done, then disconnects every
// subscriber.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.closed = true
			for sub := range h.subscribers {
				delete(h.subscribers, sub)
				close(sub.send)
			}
			h.mu.Unlock()
			return

		case message := <-h.broadcast:
			h.mu.RLock()
			var slow []*subscriber
			for sub := range h.subscribers {
				select {
				case sub.send <- message:
				default:
					slow = append(slow, sub)
				}
			}
			h.mu.RUnlock()

			for _, sub := range slow {
				h.remove(sub, "subscriber too slow, dropping")
			}
		}
	}
}

func (h *Hub) remove(sub *subscriber, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.send)
	h.log.Info().Str("subscriber", sub.id).Int("total", len(h.subscribers)).Msg(reason)
}

// Broadcast queues message for every subscriber without blocking.
func (h *Hub) Broadcast(message any) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal broadcast")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn().Msg("broadcast channel full, dropping message")
	}
}

func (h *Hub) Name() string { return "websocket" }

// Handle forwards a client notification to every subscriber.
func (h *Hub) Handle(_ context.Context, n game.Notification) error {
	msg := Message{Type: string(n.Type), Data: n.Data}
	if n.Round != nil {
		msg.GameID = n.Round.ID
	}
	h.Broadcast(msg)
	return nil
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// subscribe registers conn with the initial frames already queued. It
// returns nil once the hub has stopped.
func (h *Hub) subscribe(conn *websocket.Conn, initial ...any) *subscriber {
	sub := &subscriber{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, SUBSCRIBER_BUFFER),
	}
	for _, msg := range initial {
		if data, err := json.Marshal(msg); err == nil {
			sub.send <- data
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.subscribers[sub] = struct{}{}
	h.log.Info().Str("subscriber", sub.id).Int("total", len(h.subscribers)).Msg("subscriber connected")
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.remove(sub, "subscriber disconnected")
}

// sendTo queues a reply for one subscriber, dropping it when the
// subscriber is gone or backed up.
func (h *Hub) sendTo(sub *subscriber, message any) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	select {
	case sub.send <- data:
	default:
	}
}

// writePump owns all writes to the subscriber's connection until its send
// channel is closed.
func (s *subscriber) writePump() {
	for message := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT))
		if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Debug().Err(err).Str("subscriber", s.id).Msg("write failed")
			break
		}
	}
	s.conn.Close()
}
