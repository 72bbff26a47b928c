package main

import (
	"log"

	"drawspace-backend/internal/config"
	"drawspace-backend/internal/database"
	"drawspace-backend/internal/presence"
	"drawspace-backend/internal/server"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	// 데이터베이스 연결
	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close()

	// Ping 테스트
	if err := database.Ping(); err != nil {
		log.Fatalf("❌ Database ping failed: %v", err)
	}
	log.Printf("✅ Database connected successfully")

	// Redis presence 미러 (선택적 - 실패해도 서버는 뜬다)
	var mirror *presence.Manager
	if cfg.Redis.Addr != "" {
		mirror, err = presence.NewManager(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("⚠️ Redis connection failed: %v (presence mirror disabled)", err)
			mirror = nil
		} else {
			log.Printf("✅ Redis presence mirror connected (%s)", cfg.Redis.Addr)
			defer mirror.Close()
		}
	} else {
		log.Println("ℹ️ Redis not configured (presence mirror disabled)")
	}

	// 서버 생성 및 설정
	srv := server.New(cfg, db, mirror)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
