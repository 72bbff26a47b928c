package model

import (
	"strconv"
	"time"
)

// Canvas 캔버스 (shared drawing surface)
type Canvas struct {
	ID                 string     `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerID            int64      `gorm:"not null;index" json:"owner_id"`
	Width              int        `gorm:"not null" json:"width"`
	Height             int        `gorm:"not null" json:"height"`
	BackgroundColor    string     `gorm:"type:varchar(20);default:'#ffffff'" json:"background_color"`
	SnapshotData       string     `gorm:"type:jsonb;default:'[]'" json:"snapshot_data"`
	Version            int64      `gorm:"not null;default:0" json:"version"`
	Visibility         Visibility `gorm:"type:varchar(20);default:'PRIVATE'" json:"visibility"`
	AllowAnonymousEdit bool       `gorm:"default:false" json:"allow_anonymous_edit"`
	MaxCollaborators   int        `gorm:"default:20" json:"max_collaborators"`
	LastActivityAt     time.Time  `gorm:"autoUpdateTime" json:"last_activity_at"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Collaborators []Collaborator `gorm:"foreignKey:CanvasID" json:"collaborators,omitempty"`
	ShareTokens   []ShareToken   `gorm:"foreignKey:CanvasID" json:"share_tokens,omitempty"`
}

func (Canvas) TableName() string {
	return "canvases"
}

// Collaborator 캔버스 협업자 (durable (canvas, principal) permission record)
// Exactly one of UserID / GuestID is set.
type Collaborator struct {
	ID         int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	CanvasID   string     `gorm:"type:uuid;not null;uniqueIndex:idx_canvas_principal" json:"canvas_id"`
	UserID     *int64     `gorm:"uniqueIndex:idx_canvas_principal" json:"user_id,omitempty"`
	GuestID    *string    `gorm:"type:uuid;uniqueIndex:idx_canvas_principal" json:"guest_id,omitempty"`
	Permission Permission `gorm:"type:varchar(20);not null" json:"permission"`
	IsActive   bool       `gorm:"default:true" json:"is_active"`
	JoinedAt   time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`

	// Relations
	Canvas Canvas `gorm:"foreignKey:CanvasID" json:"canvas,omitempty"`
}

func (Collaborator) TableName() string {
	return "collaborators"
}

// ShareToken 공유 토큰 (opaque credential outside the collaborator registry)
type ShareToken struct {
	Token       string      `gorm:"primaryKey;type:uuid" json:"token"`
	CanvasID    string      `gorm:"type:uuid;not null;index" json:"canvas_id"`
	Policy      TokenPolicy `gorm:"type:varchar(20);not null" json:"policy"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	AccessCount int64       `gorm:"default:0" json:"access_count"`
	MaxAccess   *int64      `json:"max_access,omitempty"`
	CreatedBy   int64       `gorm:"not null" json:"created_by"`
	CreatedAt   time.Time   `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Canvas Canvas `gorm:"foreignKey:CanvasID" json:"canvas,omitempty"`
}

func (ShareToken) TableName() string {
	return "share_tokens"
}

// Principal identifies either an authenticated user or an anonymous guest.
// Zero UserID means guest; guests never have a zero GuestID.
type Principal struct {
	UserID  int64  `json:"user_id,omitempty"`
	GuestID string `json:"guest_id,omitempty"`
	Name    string `json:"name,omitempty"`
}

// IsGuest reports whether the principal is an anonymous guest
func (p Principal) IsGuest() bool {
	return p.UserID == 0
}

// Matches reports whether the principal matches a collaborator row
func (p Principal) Matches(c *Collaborator) bool {
	if p.IsGuest() {
		return c.GuestID != nil && *c.GuestID == p.GuestID
	}
	return c.UserID != nil && *c.UserID == p.UserID
}

// Key returns a stable map key for the principal
func (p Principal) Key() string {
	if p.IsGuest() {
		return "guest:" + p.GuestID
	}
	return "user:" + strconv.FormatInt(p.UserID, 10)
}
