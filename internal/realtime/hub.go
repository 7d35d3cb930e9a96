// Package realtime fans notification events out to a user's connected
// websocket sessions. Each user has a room keyed by their verified UID; an
// emit to a room with no sessions is a no-op. A multi-instance deployment
// layers the Redis bridge on top so emits reach sessions held by peers.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// Envelope is the wire shape of a fan-out message.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub tracks websocket sessions per user room.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[*session]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		rooms:  make(map[string]map[*session]struct{}),
	}
}

// Emit delivers an event to every session in the user's room. Sessions with a
// full outbound buffer are dropped rather than allowing one slow reader to
// stall the pipeline.
func (h *Hub) Emit(ctx context.Context, uid, event string, payload any) error {
	raw, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return err
	}
	h.deliver(uid, raw)
	return nil
}

// deliver pushes an already-encoded envelope to the room's sessions.
func (h *Hub) deliver(uid string, raw []byte) {
	h.mu.RLock()
	sessions := make([]*session, 0, len(h.rooms[uid]))
	for s := range h.rooms[uid] {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		if s.enqueue(raw) {
			continue
		}
		h.logger.Warn("realtime session buffer full, dropping connection", "uid", uid)
		h.detach(s)
		s.close()
	}
}

// Sessions reports the number of live sessions in the user's room.
func (h *Hub) Sessions(uid string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[uid])
}

func (h *Hub) attach(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[s.uid]
	if !ok {
		room = make(map[*session]struct{})
		h.rooms[s.uid] = room
	}
	room[s] = struct{}{}
}

func (h *Hub) detach(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[s.uid]
	if !ok {
		return
	}
	delete(room, s)
	if len(room) == 0 {
		delete(h.rooms, s.uid)
	}
}
