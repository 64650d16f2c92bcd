package handler

import (
	"time"

	"github.com/fablepress/internal/service"
	"github.com/fablepress/internal/storage"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db        *gorm.DB
	books     *service.BookService
	profiles  *service.ProfileService
	system    *service.SystemSettingService
	stories   *service.StoryService
	images    *service.ImageService
	generator service.StoryBuilder
}

// NewAPI constructs a handler set with shared services.
// imageGenInterval throttles parallel chapter illustration launches;
// zero disables the throttle.
func NewAPI(gdb *gorm.DB, uploader storage.Uploader, imageGenInterval time.Duration) *API {
	systemService := service.NewSystemSettingService(gdb)
	storyService := service.NewStoryService(systemService)
	imageService := service.NewImageService(systemService, uploader)

	return &API{
		db:        gdb,
		books:     service.NewBookService(gdb),
		profiles:  service.NewProfileService(gdb),
		system:    systemService,
		stories:   storyService,
		images:    imageService,
		generator: service.NewGeneratorService(storyService, imageService, imageGenInterval),
	}
}

// DB exposes the underlying gorm instance for legacy paths.
func (a *API) DB() *gorm.DB {
	return a.db
}

// System 返回系统设置服务，供启动时写入环境变量里的密钥。
func (a *API) System() *service.SystemSettingService {
	return a.system
}

// Stories 返回故事生成服务，测试用于替换 HTTP 客户端。
func (a *API) Stories() *service.StoryService {
	return a.stories
}

// Images 返回插画生成服务，测试用于替换 HTTP 客户端。
func (a *API) Images() *service.ImageService {
	return a.images
}

// SetGenerator 覆盖编排实现，主要用于测试。
func (a *API) SetGenerator(builder service.StoryBuilder) {
	if builder == nil {
		return
	}
	a.generator = builder
}
