package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// defaultImageGenInterval 是并行章节插画之间的默认发起间隔，
// 用于避免一次性打满图片服务的配额。
const defaultImageGenInterval = time.Second

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr        string
	Port              string
	DatabasePath      string
	SessionSecret     string
	GinMode           string
	UploadDir         string
	UploadURLPath     string
	SuperRootEmail    string
	SuperRootPassword string
	SiteBaseURL       string
	TextAPIKey        string
	ImageAPIToken     string
	ImageGenInterval  time.Duration
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	databasePath := strings.TrimSpace(os.Getenv("DATABASE_PATH"))
	if databasePath == "" {
		databasePath = "fablepress.db"
	}

	sessionSecret := strings.TrimSpace(os.Getenv("SESSION_SECRET"))
	if sessionSecret == "" {
		sessionSecret = "fablepress-dev-secret"
	}

	ginMode := strings.TrimSpace(os.Getenv("GIN_MODE"))
	if ginMode == "" {
		ginMode = "release"
	}

	uploadDir := strings.TrimSpace(os.Getenv("UPLOAD_DIR"))
	if uploadDir == "" {
		uploadDir = "web/static/uploads"
	}

	uploadURLPath := strings.TrimSpace(os.Getenv("UPLOAD_URL_PATH"))
	if uploadURLPath == "" {
		uploadURLPath = "/static/uploads"
	}

	siteBaseURL := strings.TrimSpace(os.Getenv("SITE_BASE_URL"))

	superRootEmail := strings.TrimSpace(os.Getenv("SUPER_ROOT_EMAIL"))
	superRootPassword := strings.TrimSpace(os.Getenv("SUPER_ROOT_PASSWORD"))

	textAPIKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	imageAPIToken := strings.TrimSpace(os.Getenv("REPLICATE_API_TOKEN"))

	// IMAGE_GEN_INTERVAL 接受 time.ParseDuration 格式，如 500ms、2s。
	// 0 表示不节流，解析失败时回退默认值。
	imageGenInterval := defaultImageGenInterval
	if raw := strings.TrimSpace(os.Getenv("IMAGE_GEN_INTERVAL")); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed >= 0 {
			imageGenInterval = parsed
		}
	}

	return AppConfig{
		ListenAddr:        listenAddr,
		Port:              port,
		DatabasePath:      databasePath,
		SessionSecret:     sessionSecret,
		GinMode:           ginMode,
		UploadDir:         uploadDir,
		UploadURLPath:     uploadURLPath,
		SuperRootEmail:    superRootEmail,
		SuperRootPassword: superRootPassword,
		SiteBaseURL:       siteBaseURL,
		TextAPIKey:        textAPIKey,
		ImageAPIToken:     imageAPIToken,
		ImageGenInterval:  imageGenInterval,
	}
}
