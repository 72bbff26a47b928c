package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"drawspace-backend/internal/model"
	"drawspace-backend/internal/store"
)

// CollaboratorHandler 협업자 관리 핸들러
type CollaboratorHandler struct {
	canvases *store.CanvasStore
	registry *store.CollaboratorRegistry
}

// NewCollaboratorHandler CollaboratorHandler 생성
func NewCollaboratorHandler(canvases *store.CanvasStore, registry *store.CollaboratorRegistry) *CollaboratorHandler {
	return &CollaboratorHandler{canvases: canvases, registry: registry}
}

// AddCollaboratorRequest 협업자 추가 요청
type AddCollaboratorRequest struct {
	UserID     *int64  `json:"user_id,omitempty"`
	GuestID    *string `json:"guest_id,omitempty"`
	Permission string  `json:"permission"`
}

// AddCollaborator 협업자 추가 (actor must hold ADMIN)
func (h *CollaboratorHandler) AddCollaborator(c *fiber.Ctx) error {
	canvas, err := h.canvases.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	var req AddCollaboratorRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	var target model.Principal
	switch {
	case req.UserID != nil && *req.UserID != 0:
		target = model.Principal{UserID: *req.UserID}
	case req.GuestID != nil && *req.GuestID != "":
		target = model.Principal{GuestID: *req.GuestID}
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target principal is required"})
	}

	collab, err := h.registry.Add(canvas, principalFromCtx(c), target, model.Permission(req.Permission))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(collab)
}

// UpdatePermissionRequest 권한 변경 요청
type UpdatePermissionRequest struct {
	Permission string `json:"permission"`
}

// UpdatePermission 협업자 권한 변경 (owner only, never the owner's row)
func (h *CollaboratorHandler) UpdatePermission(c *fiber.Ctx) error {
	canvas, err := h.canvases.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	collaboratorID, err := strconv.ParseInt(c.Params("cid"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid collaborator id"})
	}

	var req UpdatePermissionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	collab, err := h.registry.UpdatePermission(canvas, principalFromCtx(c), collaboratorID, model.Permission(req.Permission))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(collab)
}

// RemoveCollaborator 협업자 삭제 (owner, or self-removal)
func (h *CollaboratorHandler) RemoveCollaborator(c *fiber.Ctx) error {
	canvas, err := h.canvases.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	collaboratorID, err := strconv.ParseInt(c.Params("cid"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid collaborator id"})
	}

	if err := h.registry.Remove(canvas, principalFromCtx(c), collaboratorID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// ListCollaborators 협업자 목록 (read surface for the canvas page)
func (h *CollaboratorHandler) ListCollaborators(c *fiber.Ctx) error {
	canvas, err := h.canvases.Get(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	if _, ok := effectivePermissionFor(h.canvases, canvas, principalFromCtx(c)); !ok {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "no access to this canvas"})
	}

	collabs, err := h.registry.List(canvas.ID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"collaborators": collabs})
}
