package main

import (
	"log"

	"github.com/fablepress/internal/config"
	"github.com/fablepress/internal/db"
	"github.com/fablepress/internal/handler"
	"github.com/fablepress/internal/router"
	"github.com/fablepress/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .env 不存在时静默跳过，线上直接读环境变量。
	_ = godotenv.Load()

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}

	if cfg.SuperRootEmail != "" && cfg.SuperRootPassword != "" {
		if err := db.EnsureUser(cfg.SuperRootEmail, cfg.SuperRootPassword); err != nil {
			log.Fatalf("初始化管理员账号失败: %v", err)
		}
	}

	uploader := storage.NewLocalUploader(cfg.UploadDir, cfg.UploadURLPath, cfg.SiteBaseURL)
	api := handler.NewAPI(db.DB, uploader, cfg.ImageGenInterval)

	if err := api.System().SeedCredentials(cfg.TextAPIKey, cfg.ImageAPIToken); err != nil {
		log.Fatalf("写入 AI 密钥失败: %v", err)
	}

	r := router.SetupRouter(api, cfg.SessionSecret, cfg.UploadDir, cfg.UploadURLPath)

	log.Printf("服务启动，监听 %s", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("服务启动失败: %v", err)
	}
}
