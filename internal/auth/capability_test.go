package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"drawspace-backend/internal/auth"
	"drawspace-backend/internal/model"
)

func canvas(ownerID int64) *model.Canvas {
	return &model.Canvas{
		ID:         "c1",
		OwnerID:    ownerID,
		Visibility: model.VisibilityPrivate,
	}
}

func collabRow(userID int64, perm model.Permission, active bool) *model.Collaborator {
	return &model.Collaborator{
		CanvasID:   "c1",
		UserID:     &userID,
		Permission: perm,
		IsActive:   active,
	}
}

func TestEffectivePermission_OwnerIsAlwaysAdmin(t *testing.T) {
	c := canvas(1)
	perm, ok := auth.EffectivePermission(c, model.Principal{UserID: 1}, nil)
	assert.True(t, ok)
	assert.Equal(t, model.PermissionAdmin, perm)

	// even a stale VIEW row never downgrades the owner
	perm, ok = auth.EffectivePermission(c, model.Principal{UserID: 1}, collabRow(1, model.PermissionView, true))
	assert.True(t, ok)
	assert.Equal(t, model.PermissionAdmin, perm)
}

func TestEffectivePermission_CollaboratorRowWins(t *testing.T) {
	c := canvas(1)
	perm, ok := auth.EffectivePermission(c, model.Principal{UserID: 2}, collabRow(2, model.PermissionEdit, true))
	assert.True(t, ok)
	assert.Equal(t, model.PermissionEdit, perm)
}

func TestEffectivePermission_InactiveRowIgnored(t *testing.T) {
	c := canvas(1)
	_, ok := auth.EffectivePermission(c, model.Principal{UserID: 2}, collabRow(2, model.PermissionEdit, false))
	assert.False(t, ok)
}

func TestEffectivePermission_PrivateCanvasDeniesStrangers(t *testing.T) {
	c := canvas(1)
	_, ok := auth.EffectivePermission(c, model.Principal{UserID: 2}, nil)
	assert.False(t, ok)
	_, ok = auth.EffectivePermission(c, model.Principal{GuestID: "g1"}, nil)
	assert.False(t, ok)
}

func TestEffectivePermission_PublicCanvasGrantsView(t *testing.T) {
	c := canvas(1)
	c.Visibility = model.VisibilityPublic

	perm, ok := auth.EffectivePermission(c, model.Principal{GuestID: "g1"}, nil)
	assert.True(t, ok)
	assert.Equal(t, model.PermissionView, perm)
}

func TestEffectivePermission_AnonymousEditGrantsEdit(t *testing.T) {
	c := canvas(1)
	c.AllowAnonymousEdit = true

	perm, ok := auth.EffectivePermission(c, model.Principal{GuestID: "g1"}, nil)
	assert.True(t, ok)
	assert.Equal(t, model.PermissionEdit, perm)

	// explicit row still takes precedence over the implicit grant
	perm, ok = auth.EffectivePermission(c, model.Principal{UserID: 2}, collabRow(2, model.PermissionAdmin, true))
	assert.True(t, ok)
	assert.Equal(t, model.PermissionAdmin, perm)
}

func TestEffectivePermission_GuestNeverMatchesUserRow(t *testing.T) {
	c := canvas(1)
	userID := int64(2)
	row := &model.Collaborator{CanvasID: "c1", UserID: &userID, Permission: model.PermissionAdmin, IsActive: true}

	_, ok := auth.EffectivePermission(c, model.Principal{GuestID: "2"}, row)
	assert.False(t, ok)
}
