package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"pixelsync-backend/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type       string      `json:"type"`
	SubID      string      `json:"sub_id,omitempty"`
	Collection string      `json:"collection,omitempty"`
	ImageID    string      `json:"image_id,omitempty"`
	PhotoID    string      `json:"photo_id,omitempty"`
	CommentID  string      `json:"comment_id,omitempty"`
	Emoji      string      `json:"emoji,omitempty"`
	Text       string      `json:"text,omitempty"`
	Page       int         `json:"page,omitempty"`
	PerPage    int         `json:"per_page,omitempty"`
	OrderBy    string      `json:"order_by,omitempty"`
	IsLoading  *bool       `json:"is_loading,omitempty"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// WSSession is one websocket connection. Writes are serialized.
type WSSession struct {
	UserID string

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWSSession wraps an upgraded connection
func NewWSSession(userID string, conn *websocket.Conn) *WSSession {
	return &WSSession{UserID: userID, conn: conn}
}

// Send writes a message to the connection
func (s *WSSession) Send(message WSMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// SendError writes an error message
func (s *WSSession) SendError(message string) error {
	return s.Send(WSMessage{Type: "error", Message: message})
}

// Close closes the underlying connection
func (s *WSSession) Close() error {
	return s.conn.Close()
}

// PresenceHook observes an identity's first session opening and last session closing
type PresenceHook func(userID string, online bool)

// WSHub tracks open sessions. One identity may have several.
type WSHub struct {
	mu       sync.RWMutex
	sessions map[string]map[*WSSession]struct{}
	hook     PresenceHook
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		sessions: make(map[string]map[*WSSession]struct{}),
	}
}

// SetPresenceHook installs hook. It runs outside the hub lock.
func (h *WSHub) SetPresenceHook(hook PresenceHook) {
	h.mu.Lock()
	h.hook = hook
	h.mu.Unlock()
}

// Register adds a session
func (h *WSHub) Register(session *WSSession) {
	h.mu.Lock()
	first := len(h.sessions[session.UserID]) == 0
	if first {
		h.sessions[session.UserID] = make(map[*WSSession]struct{})
	}
	h.sessions[session.UserID][session] = struct{}{}
	hook := h.hook
	h.mu.Unlock()

	metrics.WSSessions.Inc()
	log.Info().Str("user_id", session.UserID).Msg("WebSocket session registered")

	if first && hook != nil {
		hook(session.UserID, true)
	}
}

// Unregister removes a session
func (h *WSHub) Unregister(session *WSSession) {
	h.mu.Lock()
	userSessions, ok := h.sessions[session.UserID]
	if ok {
		_, ok = userSessions[session]
	}
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(userSessions, session)
	last := len(userSessions) == 0
	if last {
		delete(h.sessions, session.UserID)
	}
	hook := h.hook
	h.mu.Unlock()

	metrics.WSSessions.Dec()
	log.Info().Str("user_id", session.UserID).Msg("WebSocket session unregistered")

	if last && hook != nil {
		hook(session.UserID, false)
	}
}

// OnlineUsers lists identities with at least one open session
func (h *WSHub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]string, 0, len(h.sessions))
	for userID := range h.sessions {
		users = append(users, userID)
	}
	return users
}

// IsOnline reports whether the identity has an open session
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[userID]) > 0
}

// Count returns the number of open sessions
func (h *WSHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, s := range h.sessions {
		n += len(s)
	}
	return n
}

// CloseAll sends a going-away close frame to every session and closes it
func (h *WSHub) CloseAll() {
	h.mu.RLock()
	var all []*WSSession
	for _, userSessions := range h.sessions {
		for s := range userSessions {
			all = append(all, s)
		}
	}
	h.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, s := range all {
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.Close()
	}
}
