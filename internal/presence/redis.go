package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"drawspace-backend/internal/hub"
)

// Entry Redis에 저장될 세션 상태 데이터
type Entry struct {
	SessionID   string `json:"session_id"`
	UserID      int64  `json:"user_id,omitempty"`
	GuestID     string `json:"guest_id,omitempty"`
	DisplayName string `json:"display_name"`
	Permission  string `json:"permission"`
	JoinedAt    int64  `json:"joined_at"`
}

// Manager mirrors room presence into Redis with TTL keys so the page
// chrome can show who is on a canvas without asking the hub. Best-effort:
// the hub's in-memory session set stays authoritative.
type Manager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewManager 생성자
func NewManager(addr, password string, db int) (*Manager, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Presence] Connected to %s", addr)
	return &Manager{client: rdb, ttl: 60 * time.Second}, nil
}

func (m *Manager) sessionKey(canvasID, sessionID string) string {
	return fmt.Sprintf("canvas:%s:session:%s", canvasID, sessionID)
}

func (m *Manager) canvasPattern(canvasID string) string {
	return fmt.Sprintf("canvas:%s:session:*", canvasID)
}

// SessionJoined 세션 등록 (60초 TTL, heartbeat로 연장)
func (m *Manager) SessionJoined(canvasID, sessionID string, info hub.PresenceInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	entry := Entry{
		SessionID:   sessionID,
		UserID:      info.UserID,
		GuestID:     info.GuestID,
		DisplayName: info.DisplayName,
		Permission:  info.Permission,
		JoinedAt:    time.Now().Unix(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	if err := m.client.Set(ctx, m.sessionKey(canvasID, sessionID), data, m.ttl).Err(); err != nil {
		log.Printf("[Presence] Failed to mirror join for %s: %v", sessionID, err)
	}
}

// SessionLeft 세션 삭제
func (m *Manager) SessionLeft(canvasID, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m.client.Del(ctx, m.sessionKey(canvasID, sessionID))
}

// Heartbeat 생존 신고 (TTL 연장)
func (m *Manager) Heartbeat(canvasID, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m.client.Expire(ctx, m.sessionKey(canvasID, sessionID), m.ttl)
}

// List 캔버스의 미러링된 세션 목록 조회
func (m *Manager) List(ctx context.Context, canvasID string) ([]Entry, error) {
	keys, err := m.client.Keys(ctx, m.canvasPattern(canvasID)).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []Entry{}, nil
	}

	values, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // expired between KEYS and MGET
		}
		var entry Entry
		if err := json.Unmarshal([]byte(s), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Health checks if Redis is reachable
func (m *Manager) Health(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (m *Manager) Close() error {
	return m.client.Close()
}
