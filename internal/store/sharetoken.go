package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"drawspace-backend/internal/auth"
	"drawspace-backend/internal/model"
	"drawspace-backend/pkg/apperr"
)

// tokenStore is the consume seam. The production implementation rides a
// single conditional UPDATE whose WHERE clause carries both the expiry
// and the exhaustion check, so the burn is atomic in the database; tests
// plug in an in-memory implementation with the same contract.
type tokenStore interface {
	create(token *model.ShareToken) error
	// consume reports how many rows the conditional increment touched:
	// 1 for a successful burn, 0 when the token is missing, expired or
	// exhausted
	consume(tokenStr string, now time.Time) (int64, error)
	fetch(tokenStr string) (*model.ShareToken, error)
	fetchWithCanvas(tokenStr string) (*model.ShareToken, error)
}

type gormTokenStore struct {
	db *gorm.DB
}

func (g gormTokenStore) create(token *model.ShareToken) error {
	return g.db.Create(token).Error
}

func (g gormTokenStore) consume(tokenStr string, now time.Time) (int64, error) {
	res := g.db.Model(&model.ShareToken{}).
		Where("token = ?", tokenStr).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Where("max_access IS NULL OR access_count < max_access").
		Update("access_count", gorm.Expr("access_count + 1"))
	return res.RowsAffected, res.Error
}

func (g gormTokenStore) fetch(tokenStr string) (*model.ShareToken, error) {
	var token model.ShareToken
	if err := g.db.First(&token, "token = ?", tokenStr).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

func (g gormTokenStore) fetchWithCanvas(tokenStr string) (*model.ShareToken, error) {
	var token model.ShareToken
	if err := g.db.Preload("Canvas").First(&token, "token = ?", tokenStr).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

// TokenResolver 공유 토큰 관리. Resolution is a single conditional
// check-and-increment so a one-time token cannot be redeemed twice even
// under concurrent requests.
type TokenResolver struct {
	db     *gorm.DB
	tokens tokenStore
}

// NewTokenResolver TokenResolver 생성
func NewTokenResolver(db *gorm.DB) *TokenResolver {
	return &TokenResolver{db: db, tokens: gormTokenStore{db: db}}
}

// applyPolicy fills the access bound the policy implies
func applyPolicy(token *model.ShareToken, policy model.TokenPolicy, maxAccess *int64) error {
	switch policy {
	case model.TokenPolicyOneTime:
		one := int64(1)
		token.MaxAccess = &one
	case model.TokenPolicyIndefinite:
		token.MaxAccess = maxAccess // nil means unbounded
	default:
		return apperr.InvalidInput("unknown token policy")
	}
	return nil
}

// CreateToken 토큰 발급. Actor must hold ADMIN on the canvas.
func (r *TokenResolver) CreateToken(canvas *model.Canvas, actor model.Principal, policy model.TokenPolicy, expiresAt *time.Time, maxAccess *int64) (*model.ShareToken, error) {
	ok, err := auth.CheckCapability(r.db, canvas, actor, model.PermissionAdmin)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.PermissionDenied("only admins can create share links")
	}

	token := &model.ShareToken{
		Token:     uuid.New().String(),
		CanvasID:  canvas.ID,
		Policy:    policy,
		ExpiresAt: expiresAt,
		CreatedBy: actor.UserID,
	}
	if err := applyPolicy(token, policy, maxAccess); err != nil {
		return nil, err
	}

	if err := r.tokens.create(token); err != nil {
		return nil, err
	}
	return token, nil
}

// AccessGrant what a successful resolve hands back
type AccessGrant struct {
	Canvas *model.Canvas     `json:"canvas"`
	Policy model.TokenPolicy `json:"policy"`
}

// Resolve 토큰 검증 + 사용 횟수 증가 in one conditional update. The
// check-and-increment is not a read-then-write pair: the WHERE clause
// carries both the expiry and the exhaustion check.
func (r *TokenResolver) Resolve(tokenStr string) (*AccessGrant, error) {
	now := time.Now()

	affected, err := r.tokens.consume(tokenStr, now)
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		// Distinguish the terminal states for the caller
		token, err := r.tokens.fetch(tokenStr)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.CanvasNotFound(tokenStr)
		}
		if err != nil {
			return nil, err
		}
		if token.ExpiresAt != nil && now.After(*token.ExpiresAt) {
			return nil, apperr.TokenExpired()
		}
		return nil, apperr.TokenExhausted()
	}

	token, err := r.tokens.fetchWithCanvas(tokenStr)
	if err != nil {
		return nil, err
	}

	return &AccessGrant{Canvas: &token.Canvas, Policy: token.Policy}, nil
}
