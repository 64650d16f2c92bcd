package db

import "gorm.io/gorm"

// Chapter 定义了绘本章节模型，page 在同一本书内按 1..N 升序排列
type Chapter struct {
	gorm.Model
	BookID      uint   `gorm:"index;not null"`
	Subtitle    string `gorm:"not null"`
	TextContent string `gorm:"type:text"`
	ImagePrompt string
	ImageURL    string
	Page        int `gorm:"not null"`
}
