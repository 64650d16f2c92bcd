package db

import "gorm.io/gorm"

// Book 定义了绘本模型，由一次成功的生成流水线写入，此后不再修改
type Book struct {
	gorm.Model
	Title            string `gorm:"not null"`
	Slug             string `gorm:"uniqueIndex;not null"`
	Author           string
	AuthorID         uint `gorm:"index;not null"`
	CoverURL         string
	CoverDescription string
	CoverWidth       int
	CoverHeight      int
	Chapters         []Chapter `gorm:"constraint:OnDelete:CASCADE"`
}
