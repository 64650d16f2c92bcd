// 开发环境数据填充脚本：创建演示账号和一本示例绘本，方便本地联调前端。
package main

import (
	"log"

	"github.com/fablepress/internal/config"
	"github.com/fablepress/internal/db"
	"github.com/fablepress/internal/service"
	"github.com/joho/godotenv"
)

const demoEmail = "demo@fablepress.local"
const demoPassword = "demo-password"

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}

	if err := db.EnsureUser(demoEmail, demoPassword); err != nil {
		log.Fatalf("创建演示账号失败: %v", err)
	}

	var user db.User
	if err := db.DB.Where("email = ?", demoEmail).First(&user).Error; err != nil {
		log.Fatalf("读取演示账号失败: %v", err)
	}

	profiles := service.NewProfileService(db.DB)
	if _, err := profiles.GetOrCreate(user.ID, user.Email, "Demo Author"); err != nil {
		log.Fatalf("创建演示档案失败: %v", err)
	}

	books := service.NewBookService(db.DB)

	var count int64
	if err := db.DB.Model(&db.Book{}).Where("author_id = ?", user.ID).Count(&count).Error; err != nil {
		log.Fatalf("统计绘本失败: %v", err)
	}
	if count > 0 {
		log.Printf("演示账号已有 %d 本绘本，跳过填充", count)
		return
	}

	story := service.IllustratedStory{
		Title:            "The Acorn Who Asked Questions",
		CoverDescription: "a curious acorn under a giant oak tree",
		CoverURL:         "/static/uploads/books/seed-cover.webp",
		Chapters: []service.IllustratedChapter{
			{
				Subtitle:    "A Small Question",
				TextContent: "Once upon a time, a little acorn wondered why the oak stood so tall.",
				ImagePrompt: "a tiny acorn looking up at a towering oak",
				ImageURL:    "/static/uploads/books/seed-1.webp",
				Page:        1,
			},
			{
				Subtitle:    "The Long Wait",
				TextContent: "The oak told the acorn that tall things begin by waiting in the dark soil.",
				ImagePrompt: "an acorn tucked into warm soil at dusk",
				ImageURL:    "/static/uploads/books/seed-2.webp",
				Page:        2,
			},
			{
				Subtitle:    "First Leaves",
				TextContent: "In spring the acorn pushed out two small leaves, and the forest cheered.",
				ImagePrompt: "a sprout with two leaves in a sunny clearing",
				ImageURL:    "/static/uploads/books/seed-3.webp",
				Page:        3,
			},
		},
	}

	result, err := books.SaveStory(story, user.ID)
	if err != nil {
		log.Fatalf("写入示例绘本失败: %v", err)
	}
	log.Printf("示例绘本已创建: id=%d slug=%s", result.BookID, result.Slug)
	log.Printf("演示账号: %s / %s", demoEmail, demoPassword)
}
