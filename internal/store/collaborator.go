package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"drawspace-backend/internal/auth"
	"drawspace-backend/internal/model"
	"drawspace-backend/pkg/apperr"
)

// CollaboratorRegistry durable (canvas, principal) -> permission mapping.
// All writes are validated against the acting principal before they touch
// the table; the owner's row is immutable.
type CollaboratorRegistry struct {
	db *gorm.DB
}

// NewCollaboratorRegistry CollaboratorRegistry 생성
func NewCollaboratorRegistry(db *gorm.DB) *CollaboratorRegistry {
	return &CollaboratorRegistry{db: db}
}

// Add 협업자 추가. Actor must hold ADMIN on the canvas.
func (r *CollaboratorRegistry) Add(canvas *model.Canvas, actor model.Principal, target model.Principal, permission model.Permission) (*model.Collaborator, error) {
	if !permission.Valid() {
		return nil, apperr.InvalidInput("unknown permission level")
	}

	ok, err := auth.CheckCapability(r.db, canvas, actor, model.PermissionAdmin)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.PermissionDenied("only admins can add collaborators")
	}

	existing, err := auth.FindCollaborator(r.db, canvas.ID, target)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.CollaboratorExists()
	}

	var count int64
	if err := r.db.Model(&model.Collaborator{}).
		Where("canvas_id = ?", canvas.ID).
		Count(&count).Error; err != nil {
		return nil, err
	}
	if canvas.MaxCollaborators > 0 && count >= int64(canvas.MaxCollaborators) {
		return nil, apperr.CapacityExceeded(canvas.MaxCollaborators)
	}

	collab := &model.Collaborator{
		CanvasID:   canvas.ID,
		Permission: permission,
		IsActive:   true,
	}
	if target.IsGuest() {
		guestID := target.GuestID
		collab.GuestID = &guestID
	} else {
		userID := target.UserID
		collab.UserID = &userID
	}

	if err := r.db.Create(collab).Error; err != nil {
		return nil, err
	}
	return collab, nil
}

// UpdatePermission 권한 변경. Only the canvas owner may change permissions,
// and the owner's own row can never be the target.
func (r *CollaboratorRegistry) UpdatePermission(canvas *model.Canvas, actor model.Principal, collaboratorID int64, newPermission model.Permission) (*model.Collaborator, error) {
	if !newPermission.Valid() {
		return nil, apperr.InvalidInput("unknown permission level")
	}
	if actor.IsGuest() || actor.UserID != canvas.OwnerID {
		return nil, apperr.PermissionDenied("only the canvas owner can change permissions")
	}

	collab, err := r.get(canvas.ID, collaboratorID)
	if err != nil {
		return nil, err
	}
	if collab.UserID != nil && *collab.UserID == canvas.OwnerID {
		return nil, apperr.CannotModifyOwner()
	}

	if err := r.db.Model(collab).Update("permission", newPermission).Error; err != nil {
		return nil, err
	}
	collab.Permission = newPermission
	return collab, nil
}

// Remove 협업자 삭제. Allowed for the owner, or for a collaborator removing
// themself. The owner row can never be removed.
func (r *CollaboratorRegistry) Remove(canvas *model.Canvas, actor model.Principal, collaboratorID int64) error {
	collab, err := r.get(canvas.ID, collaboratorID)
	if err != nil {
		return err
	}
	if collab.UserID != nil && *collab.UserID == canvas.OwnerID {
		return apperr.CannotModifyOwner()
	}

	isOwner := !actor.IsGuest() && actor.UserID == canvas.OwnerID
	isSelf := actor.Matches(collab)
	if !isOwner && !isSelf {
		return apperr.PermissionDenied("only the owner can remove other collaborators")
	}

	return r.db.Delete(collab).Error
}

// List 캔버스 협업자 목록
func (r *CollaboratorRegistry) List(canvasID string) ([]model.Collaborator, error) {
	var collabs []model.Collaborator
	if err := r.db.Where("canvas_id = ?", canvasID).
		Order("joined_at ASC").
		Find(&collabs).Error; err != nil {
		return nil, err
	}
	return collabs, nil
}

// TouchLastSeen records room activity for a registered collaborator.
// Best-effort: guests with implicit grants have no row to touch.
func (r *CollaboratorRegistry) TouchLastSeen(canvasID string, principal model.Principal) {
	now := time.Now()
	q := r.db.Model(&model.Collaborator{}).Where("canvas_id = ?", canvasID)
	if principal.IsGuest() {
		q = q.Where("guest_id = ?", principal.GuestID)
	} else {
		q = q.Where("user_id = ?", principal.UserID)
	}
	q.Update("last_seen_at", now)
}

func (r *CollaboratorRegistry) get(canvasID string, collaboratorID int64) (*model.Collaborator, error) {
	var collab model.Collaborator
	err := r.db.Where("canvas_id = ? AND id = ?", canvasID, collaboratorID).First(&collab).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.CodeCanvasNotFound, "collaborator not found", 404)
		}
		return nil, err
	}
	return &collab, nil
}
