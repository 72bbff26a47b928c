package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"drawspace-backend/internal/model"
	"drawspace-backend/internal/store"
	"drawspace-backend/pkg/apperr"
)

// CanvasHandler 캔버스 핸들러
type CanvasHandler struct {
	canvases *store.CanvasStore
	tokens   *store.TokenResolver
	rooms    RoomSizer
	maxDim   int
}

// RoomSizer reports live session counts (implemented by the room hub)
type RoomSizer interface {
	RoomSize(canvasID string) int
}

// NewCanvasHandler CanvasHandler 생성
func NewCanvasHandler(canvases *store.CanvasStore, tokens *store.TokenResolver, rooms RoomSizer, maxDim int) *CanvasHandler {
	return &CanvasHandler{canvases: canvases, tokens: tokens, rooms: rooms, maxDim: maxDim}
}

// CreateCanvasRequest 캔버스 생성 요청
type CreateCanvasRequest struct {
	Width              int    `json:"width"`
	Height             int    `json:"height"`
	BackgroundColor    string `json:"background_color"`
	Visibility         string `json:"visibility"`
	AllowAnonymousEdit bool   `json:"allow_anonymous_edit"`
	MaxCollaborators   int    `json:"max_collaborators"`
}

// CreateCanvas 캔버스 생성 (owner collaborator row is created with it)
func (h *CanvasHandler) CreateCanvas(c *fiber.Ctx) error {
	userID, ok := c.Locals("userID").(int64)
	if !ok || userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req CreateCanvasRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if req.Width <= 0 || req.Height <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "canvas dimensions must be positive"})
	}
	if req.Width > h.maxDim || req.Height > h.maxDim {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "canvas dimensions exceed the maximum"})
	}

	visibility := model.Visibility(req.Visibility)
	if visibility != model.VisibilityPublic {
		visibility = model.VisibilityPrivate
	}

	canvas, err := h.canvases.Create(store.CreateParams{
		OwnerID:            userID,
		Width:              req.Width,
		Height:             req.Height,
		BackgroundColor:    req.BackgroundColor,
		Visibility:         visibility,
		AllowAnonymousEdit: req.AllowAnonymousEdit,
		MaxCollaborators:   req.MaxCollaborators,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(canvas)
}

// GetCanvas 캔버스 조회 (page chrome read surface)
func (h *CanvasHandler) GetCanvas(c *fiber.Ctx) error {
	canvas, err := h.canvases.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	principal := principalFromCtx(c)
	if _, ok := effectivePermissionFor(h.canvases, canvas, principal); !ok {
		return respondError(c, apperr.PermissionDenied("no access to this canvas"))
	}

	return c.JSON(fiber.Map{
		"canvas":          canvas,
		"active_sessions": h.rooms.RoomSize(canvas.ID),
	})
}

// ResolveShared 공유 토큰으로 캔버스 조회. One-time tokens burn here.
func (h *CanvasHandler) ResolveShared(c *fiber.Ctx) error {
	grant, err := h.tokens.Resolve(c.Params("shareToken"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"canvas": grant.Canvas,
		"policy": grant.Policy,
	})
}

// CreateTokenRequest 토큰 발급 요청
type CreateTokenRequest struct {
	Policy    string     `json:"policy"` // one-time | indefinite
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	MaxAccess *int64     `json:"max_access,omitempty"`
}

// CreateShareToken 공유 토큰 발급 (admin only)
func (h *CanvasHandler) CreateShareToken(c *fiber.Ctx) error {
	canvas, err := h.canvases.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	var req CreateTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	var policy model.TokenPolicy
	switch req.Policy {
	case "one-time", "one_time":
		policy = model.TokenPolicyOneTime
	case "indefinite", "":
		policy = model.TokenPolicyIndefinite
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown token policy"})
	}

	token, err := h.tokens.CreateToken(canvas, principalFromCtx(c), policy, req.ExpiresAt, req.MaxAccess)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(token)
}

// WriteDataRequest 비실시간 스냅샷 쓰기 요청
type WriteDataRequest struct {
	SnapshotData    string `json:"snapshot_data"`
	ExpectedVersion int64  `json:"expected_version"`
}

// WriteCanvasData 비실시간 fallback 스냅샷 쓰기. Permission-checked the
// same way as a live relay; the optimistic version check is surfaced to
// the caller as 409 instead of being retried.
func (h *CanvasHandler) WriteCanvasData(c *fiber.Ctx) error {
	canvas, err := h.canvases.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	principal := principalFromCtx(c)
	perm, ok := effectivePermissionFor(h.canvases, canvas, principal)
	if !ok || !perm.Covers(model.PermissionEdit) {
		return respondError(c, apperr.PermissionDenied("edit permission required"))
	}

	var req WriteDataRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	version, err := h.canvases.WriteSnapshot(canvas.ID, req.SnapshotData, req.ExpectedVersion)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"success": true, "version": version})
}

// DeleteCanvas 캔버스 삭제 (owner-only hard delete, cascades rows)
func (h *CanvasHandler) DeleteCanvas(c *fiber.Ctx) error {
	canvas, err := h.canvases.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	userID, _ := c.Locals("userID").(int64)
	if userID == 0 || canvas.OwnerID != userID {
		return respondError(c, apperr.PermissionDenied("only the owner can delete a canvas"))
	}

	if err := h.canvases.Delete(canvas.ID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// principalFromCtx builds the acting principal from the auth middleware
// locals, or from the guest header for anonymous callers
func principalFromCtx(c *fiber.Ctx) model.Principal {
	if userID, ok := c.Locals("userID").(int64); ok && userID != 0 {
		name, _ := c.Locals("nickname").(string)
		return model.Principal{UserID: userID, Name: name}
	}

	guestID := c.Get("X-Guest-ID")
	if guestID == "" {
		guestID = uuid.New().String()
	}
	return model.Principal{GuestID: guestID}
}

// effectivePermissionFor resolves the principal's permission, treating
// lookup failures as no access
func effectivePermissionFor(canvases *store.CanvasStore, canvas *model.Canvas, principal model.Principal) (model.Permission, bool) {
	perm, ok, err := canvases.EffectivePermission(canvas, principal)
	if err != nil || !ok {
		return "", false
	}
	return perm, true
}

// respondError maps application errors to the standard JSON error shape
func respondError(c *fiber.Ctx, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return c.Status(appErr.HTTPStatus).JSON(fiber.Map{
			"error": appErr.Message,
			"code":  string(appErr.Code),
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
