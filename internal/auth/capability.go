package auth

import (
	"errors"

	"gorm.io/gorm"

	"drawspace-backend/internal/model"
)

// EffectivePermission resolves what a principal may do on a canvas without
// touching the database: owner check, explicit collaborator row, then the
// canvas-wide implicit grants. collab may be nil.
//
// Every join/relay/management path goes through this; nothing re-derives
// "is owner or admin" on its own.
func EffectivePermission(canvas *model.Canvas, principal model.Principal, collab *model.Collaborator) (model.Permission, bool) {
	// 소유자(Owner)는 항상 ADMIN
	if !principal.IsGuest() && canvas.OwnerID == principal.UserID {
		return model.PermissionAdmin, true
	}

	if collab != nil && collab.IsActive && principal.Matches(collab) {
		return collab.Permission, true
	}

	// Implicit grants: session-scoped, never create a collaborator row
	if canvas.AllowAnonymousEdit {
		return model.PermissionEdit, true
	}
	if canvas.Visibility == model.VisibilityPublic {
		return model.PermissionView, true
	}

	return "", false
}

// CheckCapability 권한 확인: loads the principal's collaborator row and
// reports whether it covers the required level.
func CheckCapability(db *gorm.DB, canvas *model.Canvas, principal model.Principal, required model.Permission) (bool, error) {
	collab, err := FindCollaborator(db, canvas.ID, principal)
	if err != nil {
		return false, err
	}

	perm, ok := EffectivePermission(canvas, principal, collab)
	if !ok {
		return false, nil
	}
	return perm.Covers(required), nil
}

// FindCollaborator fetches the principal's collaborator row, nil when absent
func FindCollaborator(db *gorm.DB, canvasID string, principal model.Principal) (*model.Collaborator, error) {
	var collab model.Collaborator
	q := db.Where("canvas_id = ?", canvasID)
	if principal.IsGuest() {
		q = q.Where("guest_id = ?", principal.GuestID)
	} else {
		q = q.Where("user_id = ?", principal.UserID)
	}

	if err := q.First(&collab).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &collab, nil
}
