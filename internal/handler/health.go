package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"drawspace-backend/internal/database"
	"drawspace-backend/internal/presence"
)

// HealthHandler 헬스체크 핸들러
type HealthHandler struct {
	presence *presence.Manager // nil이면 redis 미사용
}

// NewHealthHandler HealthHandler 생성
func NewHealthHandler(p *presence.Manager) *HealthHandler {
	return &HealthHandler{presence: p}
}

// Check DB/Redis 상태 확인
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := fiber.StatusOK
	result := fiber.Map{"status": "ok"}

	if err := database.Ping(); err != nil {
		status = fiber.StatusServiceUnavailable
		result["status"] = "degraded"
		result["database"] = err.Error()
	} else {
		result["database"] = "ok"
	}

	if h.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.presence.Health(ctx); err != nil {
			result["redis"] = err.Error()
		} else {
			result["redis"] = "ok"
		}
	}

	return c.Status(status).JSON(result)
}
