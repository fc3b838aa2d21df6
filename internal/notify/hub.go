package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Subscriber is one live connection of an actor.
type Subscriber struct {
	actor model.Actor
	send  chan []byte

	hub    *Hub
	mu     sync.Mutex
	closed bool
}

// Messages returns the encoded events queued for the subscriber.
func (s *Subscriber) Messages() <-chan []byte {
	return s.send
}

// Close unregisters the subscriber and closes its queue. It is safe to call twice.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.hub.unregister(s)
	close(s.send)
}

func (s *Subscriber) offer(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Hub keeps live subscribers per actor and routes events to them.
// Admins see every event and workers also see newly created orders.
// A subscriber whose queue is full misses the event.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	byActor map[string]map[*Subscriber]struct{}
}

// NewHub constructs an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		byActor: make(map[string]map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber for the actor.
func (h *Hub) Subscribe(actor model.Actor) *Subscriber {
	s := &Subscriber{actor: actor, send: make(chan []byte, sendBuffer), hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byActor[actor.ID] == nil {
		h.byActor[actor.ID] = make(map[*Subscriber]struct{})
	}
	h.byActor[actor.ID][s] = struct{}{}
	return s
}

func (h *Hub) unregister(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.byActor[s.actor.ID]; m != nil {
		delete(m, s)
		if len(m) == 0 {
			delete(h.byActor, s.actor.ID)
		}
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, m := range h.byActor {
		n += len(m)
	}
	return n
}

// Publish delivers the event to every interested subscriber without blocking.
func (h *Hub) Publish(_ context.Context, e model.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Kind, err)
	}

	recipients := make(map[string]struct{}, len(e.Recipients))
	for _, id := range e.Recipients {
		recipients[id] = struct{}{}
	}

	var targets []*Subscriber
	h.mu.RLock()
	for id, subs := range h.byActor {
		for s := range subs {
			if _, ok := recipients[id]; ok || interested(s.actor, e) {
				targets = append(targets, s)
			}
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if !s.offer(data) {
			h.logger.Debug("live subscriber lagging, event dropped",
				slog.String("actor", s.actor.ID),
				slog.String("kind", string(e.Kind)),
			)
		}
	}
	return nil
}

func interested(actor model.Actor, e model.Event) bool {
	switch actor.Role {
	case model.RoleAdmin:
		return true
	case model.RoleMaster:
		return e.Kind == model.EventOrderCreated
	}
	return false
}

// ServeConn pumps the actor's events into conn until the peer goes away or ctx ends.
func (h *Hub) ServeConn(ctx context.Context, conn *websocket.Conn, actor model.Actor) {
	sub := h.Subscribe(actor)
	defer sub.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		case <-gone:
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
