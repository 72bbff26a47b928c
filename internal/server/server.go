package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"drawspace-backend/internal/auth"
	"drawspace-backend/internal/config"
	"drawspace-backend/internal/handler"
	"drawspace-backend/internal/hub"
	"drawspace-backend/internal/presence"
	"drawspace-backend/internal/store"
)

// Server Fiber 서버 래퍼
type Server struct {
	app                 *fiber.App
	cfg                 *config.Config
	db                  *gorm.DB
	rooms               *hub.RoomHub
	writer              *store.SnapshotWriter
	canvasHandler       *handler.CanvasHandler
	collaboratorHandler *handler.CollaboratorHandler
	canvasWSHandler     *handler.CanvasWSHandler
	healthHandler       *handler.HealthHandler
	jwtManager          *auth.JWTManager
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, db *gorm.DB, mirror *presence.Manager) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Drawspace Canvas Backend",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		BodyLimit:             10 * 1024 * 1024, // 10MB - 대형 스냅샷 허용
		DisableStartupMessage: false,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry)

	canvasStore := store.NewCanvasStore(db)
	registry := store.NewCollaboratorRegistry(db)
	tokens := store.NewTokenResolver(db)
	writer := store.NewSnapshotWriter(canvasStore, cfg.Canvas.SnapshotCoalesceWindow)

	// typed-nil이 인터페이스로 승격되는 것 방지
	var hubMirror hub.PresenceMirror
	if mirror != nil {
		hubMirror = mirror
	}

	rooms := hub.NewRoomHub(canvasStore, writer, canvasStore.EffectivePermission, hubMirror, hub.Config{
		HeartbeatTimeout:        cfg.Canvas.HeartbeatTimeout,
		ReaperInterval:          cfg.Canvas.ReaperInterval,
		DefaultMaxCollaborators: cfg.Canvas.DefaultMaxCollaborators,
		EventBufferSize:         cfg.Canvas.EventBufferSize,
	})

	// 플러시된 버전을 룸에 반영 (늦게 합류한 세션이 최신 버전을 받도록)
	writer.OnFlush(rooms.UpdateVersion)

	return &Server{
		app:                 app,
		cfg:                 cfg,
		db:                  db,
		rooms:               rooms,
		writer:              writer,
		canvasHandler:       handler.NewCanvasHandler(canvasStore, tokens, rooms, cfg.Canvas.MaxCanvasDimension),
		collaboratorHandler: handler.NewCollaboratorHandler(canvasStore, registry),
		canvasWSHandler:     handler.NewCanvasWSHandler(rooms),
		healthHandler:       handler.NewHealthHandler(mirror),
		jwtManager:          jwtManager,
	}
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Guest-ID",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)

	// Rate Limiter (공유 토큰 추측 방지)
	shareLimiter := limiter.New(limiter.Config{
		Max:        30,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// Canvas 라우트 그룹
	canvasGroup := s.app.Group("/api/canvas")
	canvasGroup.Post("", auth.AuthMiddleware(s.jwtManager), s.canvasHandler.CreateCanvas)
	canvasGroup.Get("/:id", auth.OptionalAuthMiddleware(s.jwtManager), s.canvasHandler.GetCanvas)
	canvasGroup.Put("/:id/data", auth.OptionalAuthMiddleware(s.jwtManager), s.canvasHandler.WriteCanvasData)
	canvasGroup.Delete("/:id", auth.AuthMiddleware(s.jwtManager), s.canvasHandler.DeleteCanvas)
	canvasGroup.Post("/:id/share", auth.OptionalAuthMiddleware(s.jwtManager), s.canvasHandler.CreateShareToken)

	// Collaborator 라우트 (캔버스 하위)
	canvasGroup.Get("/:id/collaborators", auth.OptionalAuthMiddleware(s.jwtManager), s.collaboratorHandler.ListCollaborators)
	canvasGroup.Post("/:id/collaborators", auth.OptionalAuthMiddleware(s.jwtManager), s.collaboratorHandler.AddCollaborator)
	canvasGroup.Put("/:id/collaborators/:cid", auth.OptionalAuthMiddleware(s.jwtManager), s.collaboratorHandler.UpdatePermission)
	canvasGroup.Delete("/:id/collaborators/:cid", auth.OptionalAuthMiddleware(s.jwtManager), s.collaboratorHandler.RemoveCollaborator)

	// 공유 링크 접근
	s.app.Get("/api/shared/:shareToken", shareLimiter, auth.OptionalAuthMiddleware(s.jwtManager), s.canvasHandler.ResolveShared)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket 캔버스 협업 엔드포인트
	s.app.Get("/ws/canvas", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// 인증은 선택적: 쿠키 또는 쿼리 파라미터의 JWT
		accessToken := c.Cookies("access_token")
		if accessToken == "" {
			accessToken = c.Query("token")
		}
		if accessToken != "" {
			claims, err := s.jwtManager.ValidateAccessToken(accessToken)
			if err == nil {
				c.Locals("userID", claims.UserID)
				c.Locals("nickname", claims.Nickname)
			}
		}

		return c.Next()
	}, websocket.New(s.canvasWSHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	s.writer.Start()
	s.rooms.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Printf("🚨 Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Drawspace Canvas Backend starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/canvas", s.cfg.Server.Port)

	err := s.app.Listen(s.cfg.Server.Port)

	// Listen 반환 후 방과 스냅샷 큐 정리 (pending 스냅샷 최종 flush 포함)
	s.rooms.Close()
	s.writer.Close()
	return err
}

// Shutdown 서버 종료
func (s *Server) Shutdown() error {
	err := s.app.ShutdownWithTimeout(30 * time.Second)
	s.rooms.Close()
	s.writer.Close()
	return err
}
