// Package room tracks which connections belong to which session and fans frames out to them.
package room

import (
	"sync"

	"github.com/park285/Cheese-Arena/internal/obslog"
	"go.uber.org/zap"
)

// Member is one connection. Send must not block; it reports false when the
// frame was dropped.
type Member interface {
	ID() string
	ParticipantID() string
	Send(frame []byte) bool
}

type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Member // sessionID -> memberID -> member
	relay *Relay
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[string]Member)}
}

// AttachRelay makes every delivery also go to other instances.
func (h *Hub) AttachRelay(r *Relay) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}

// Join adds m to the session room. Joining twice is a no-op.
func (h *Hub) Join(sessionID string, m Member) {
	if m == nil || sessionID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[sessionID]
	if !ok {
		members = make(map[string]Member)
		h.rooms[sessionID] = members
	}
	if _, exists := members[m.ID()]; exists {
		return
	}
	members[m.ID()] = m
	obslog.L().Debug("room_join",
		zap.String("session_id", sessionID),
		zap.String("member_id", m.ID()),
		zap.String("participant_id", m.ParticipantID()),
		zap.Int("members", len(members)),
	)
}

func (h *Hub) Leave(sessionID, memberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(sessionID, memberID)
}

// LeaveAll empties the room here and on every relayed instance.
func (h *Hub) LeaveAll(sessionID string) {
	if n := h.clearLocal(sessionID); n > 0 {
		obslog.L().Debug("room_close", zap.String("session_id", sessionID), zap.Int("members", n))
	}
	h.publish(envelope{Op: opLeaveAll, SessionID: sessionID})
}

// Drop removes m from every room it joined.
func (h *Hub) Drop(m Member) {
	if m == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID := range h.rooms {
		h.leaveLocked(sessionID, m.ID())
	}
}

// Count reports how many connections are in the session room.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// Broadcast delivers frame to every member of the session.
func (h *Hub) Broadcast(sessionID string, frame []byte) {
	h.deliver(sessionID, func(Member) bool { return true }, frame)
	h.publish(envelope{Op: opBroadcast, SessionID: sessionID, Frame: frame})
}

// SendTo delivers frame only to connections of participantID.
func (h *Hub) SendTo(sessionID, participantID string, frame []byte) {
	h.deliver(sessionID, func(m Member) bool { return m.ParticipantID() == participantID }, frame)
	h.publish(envelope{Op: opSendTo, SessionID: sessionID, Participant: participantID, Frame: frame})
}

func (h *Hub) deliver(sessionID string, match func(Member) bool, frame []byte) {
	h.mu.RLock()
	targets := make([]Member, 0, len(h.rooms[sessionID]))
	for _, m := range h.rooms[sessionID] {
		if match(m) {
			targets = append(targets, m)
		}
	}
	h.mu.RUnlock()
	for _, m := range targets {
		if !m.Send(frame) {
			obslog.L().Warn("room_send_dropped", zap.String("session_id", sessionID), zap.String("member_id", m.ID()))
		}
	}
}

func (h *Hub) clearLocal(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.rooms[sessionID])
	delete(h.rooms, sessionID)
	return n
}

func (h *Hub) leaveLocked(sessionID, memberID string) {
	members, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	delete(members, memberID)
	if len(members) == 0 {
		delete(h.rooms, sessionID)
	}
}

func (h *Hub) publish(env envelope) {
	h.mu.RLock()
	r := h.relay
	h.mu.RUnlock()
	if r != nil {
		r.publish(env)
	}
}

// apply handles a frame relayed from another instance; it never republishes.
func (h *Hub) apply(env envelope) {
	switch env.Op {
	case opBroadcast:
		h.deliver(env.SessionID, func(Member) bool { return true }, env.Frame)
	case opSendTo:
		h.deliver(env.SessionID, func(m Member) bool { return m.ParticipantID() == env.Participant }, env.Frame)
	case opLeaveAll:
		h.clearLocal(env.SessionID)
	}
}
