package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"drawspace-backend/internal/auth"
	"drawspace-backend/internal/model"
	"drawspace-backend/pkg/apperr"
)

// CanvasStore durable, versioned canvas persistence. Everything that
// mutates snapshot_data goes through the optimistic version check; there
// is no blind-overwrite path.
type CanvasStore struct {
	db *gorm.DB
}

// NewCanvasStore CanvasStore 생성
func NewCanvasStore(db *gorm.DB) *CanvasStore {
	return &CanvasStore{db: db}
}

// CreateParams canvas creation input
type CreateParams struct {
	OwnerID            int64
	Width              int
	Height             int
	BackgroundColor    string
	Visibility         model.Visibility
	AllowAnonymousEdit bool
	MaxCollaborators   int
}

// Create 캔버스 생성 + owner collaborator row, atomically
func (s *CanvasStore) Create(p CreateParams) (*model.Canvas, error) {
	if p.Width <= 0 || p.Height <= 0 {
		return nil, apperr.InvalidInput("canvas dimensions must be positive")
	}
	if p.BackgroundColor == "" {
		p.BackgroundColor = "#ffffff"
	}
	if p.Visibility == "" {
		p.Visibility = model.VisibilityPrivate
	}

	canvas := &model.Canvas{
		ID:                 uuid.New().String(),
		OwnerID:            p.OwnerID,
		Width:              p.Width,
		Height:             p.Height,
		BackgroundColor:    p.BackgroundColor,
		SnapshotData:       "[]",
		Visibility:         p.Visibility,
		AllowAnonymousEdit: p.AllowAnonymousEdit,
		MaxCollaborators:   p.MaxCollaborators,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(canvas).Error; err != nil {
			return err
		}

		// 소유자 row는 캔버스와 함께 생성 (항상 ADMIN)
		owner := model.Collaborator{
			CanvasID:   canvas.ID,
			UserID:     &p.OwnerID,
			Permission: model.PermissionAdmin,
			IsActive:   true,
		}
		return tx.Create(&owner).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create canvas: %w", err)
	}

	return canvas, nil
}

// Get 캔버스 조회
func (s *CanvasStore) Get(id string) (*model.Canvas, error) {
	var canvas model.Canvas
	if err := s.db.First(&canvas, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.CanvasNotFound(id)
		}
		return nil, err
	}
	return &canvas, nil
}

// EffectivePermission resolves what a principal may do on a canvas,
// collaborator row included. This is the hub's PermissionFunc.
func (s *CanvasStore) EffectivePermission(canvas *model.Canvas, principal model.Principal) (model.Permission, bool, error) {
	collab, err := auth.FindCollaborator(s.db, canvas.ID, principal)
	if err != nil {
		return "", false, err
	}
	perm, ok := auth.EffectivePermission(canvas, principal, collab)
	return perm, ok, nil
}

// LoadSnapshot seeds a late joiner. Join sequencing (snapshot before live
// events) is the room's responsibility; this is just the read.
func (s *CanvasStore) LoadSnapshot(id string) (string, int64, error) {
	canvas, err := s.Get(id)
	if err != nil {
		return "", 0, err
	}
	return canvas.SnapshotData, canvas.Version, nil
}

// ApplyAndPersist folds events into the stored snapshot under the
// optimistic version check. The whole batch counts as one accepted
// mutation: version moves up by exactly 1 per persisted write.
//
// Stroke folds are reapplied safely on a version mismatch; a clear in the
// batch short-circuits everything before it to a blank snapshot.
func (s *CanvasStore) ApplyAndPersist(canvasID string, events []*model.DrawingEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	const maxConflictRetries = 5

	var lastErr error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		canvas, err := s.Get(canvasID)
		if err != nil {
			return 0, err
		}

		folded, background, err := foldBatch(canvas.SnapshotData, events)
		if err != nil {
			return 0, err
		}

		updates := map[string]interface{}{
			"snapshot_data":    folded,
			"version":          canvas.Version + 1,
			"last_activity_at": time.Now(),
		}
		if background != "" {
			updates["background_color"] = background
		}

		res := s.db.Model(&model.Canvas{}).
			Where("id = ? AND version = ?", canvasID, canvas.Version).
			Updates(updates)
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 1 {
			return canvas.Version + 1, nil
		}

		// Stale read: someone else advanced version, reload and reapply
		lastErr = apperr.VersionConflict(canvas.Version, -1)
	}

	return 0, lastErr
}

// WriteSnapshot is the non-realtime fallback (PUT /canvas/:id/data): a
// full snapshot replacement gated on the caller's expected version.
func (s *CanvasStore) WriteSnapshot(canvasID, snapshotData string, expectedVersion int64) (int64, error) {
	canvas, err := s.Get(canvasID)
	if err != nil {
		return 0, err
	}
	if canvas.Version != expectedVersion {
		return 0, apperr.VersionConflict(expectedVersion, canvas.Version)
	}

	res := s.db.Model(&model.Canvas{}).
		Where("id = ? AND version = ?", canvasID, expectedVersion).
		Updates(map[string]interface{}{
			"snapshot_data":    snapshotData,
			"version":          expectedVersion + 1,
			"last_activity_at": time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, apperr.VersionConflict(expectedVersion, canvas.Version)
	}
	return expectedVersion + 1, nil
}

// Delete 캔버스 삭제 (owner-only is enforced at the handler), cascades
// collaborator rows and share tokens
func (s *CanvasStore) Delete(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("canvas_id = ?", id).Delete(&model.Collaborator{}).Error; err != nil {
			return err
		}
		if err := tx.Where("canvas_id = ?", id).Delete(&model.ShareToken{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.Canvas{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.CanvasNotFound(id)
		}
		return nil
	})
}

// foldBatch folds a batch of events onto a stored snapshot. Returns the
// folded snapshot and the last background color in the batch, if any.
func foldBatch(snapshot string, events []*model.DrawingEvent) (string, string, error) {
	folded := snapshot
	background := ""
	var err error
	for _, ev := range events {
		folded, err = model.Fold(folded, ev)
		if err != nil {
			return "", "", err
		}
		if ev.Kind == model.EventKindBackgroundColor {
			background = ev.Color
		}
	}
	return folded, background, nil
}
