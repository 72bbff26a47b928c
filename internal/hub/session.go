package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"drawspace-backend/internal/model"
)

// Conn is the session's outbound transport. The websocket handler wraps
// the upgraded connection; tests plug in an in-memory fake.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Session 접속 중인 참가자 (Thread-Safe). Transient, owned by the room;
// destroyed on disconnect, never persisted.
type Session struct {
	ID          string
	CanvasID    string
	Principal   model.Principal
	DisplayName string
	Permission  model.Permission

	conn    Conn
	writeMu sync.Mutex

	mu         sync.RWMutex
	cursor     model.Point
	lastSeenAt time.Time
	closed     bool
}

// NewSession 새 세션 생성
func NewSession(canvasID string, principal model.Principal, displayName string, permission model.Permission, conn Conn) *Session {
	return &Session{
		ID:          uuid.New().String(),
		CanvasID:    canvasID,
		Principal:   principal,
		DisplayName: displayName,
		Permission:  permission,
		conn:        conn,
		lastSeenAt:  time.Now(),
	}
}

// Send writes a message to the session's connection. One writer at a time;
// concurrent broadcasts serialize on the write mutex.
func (s *Session) Send(msg *ServerMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// Touch records activity for the heartbeat reaper
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeenAt = time.Now()
	s.mu.Unlock()
}

// LastSeen 마지막 활동 시각
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeenAt
}

// SetCursor updates the session's cursor position
func (s *Session) SetCursor(p model.Point) {
	s.mu.Lock()
	s.cursor = p
	s.mu.Unlock()
}

// Cursor 현재 커서 위치
func (s *Session) Cursor() model.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// CanEdit reports whether the session may mutate the canvas
func (s *Session) CanEdit() bool {
	return s.Permission.Covers(model.PermissionEdit)
}

// Close shuts the underlying connection once
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.conn.Close()
}

// PresenceInfo 참가자 정보 sent in presence lists and join broadcasts
type PresenceInfo struct {
	SessionID   string      `json:"socketId"`
	UserID      int64       `json:"userId,omitempty"`
	GuestID     string      `json:"guestId,omitempty"`
	DisplayName string      `json:"displayName"`
	Permission  string      `json:"permission"`
	Cursor      model.Point `json:"cursor"`
}

// Presence snapshot of the session for the wire
func (s *Session) Presence() PresenceInfo {
	return PresenceInfo{
		SessionID:   s.ID,
		UserID:      s.Principal.UserID,
		GuestID:     s.Principal.GuestID,
		DisplayName: s.DisplayName,
		Permission:  s.Permission.String(),
		Cursor:      s.Cursor(),
	}
}
