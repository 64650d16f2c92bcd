package db

import "gorm.io/gorm"

// Profile 定义了作者资料模型，与登录账号一一对应。
// 正常情况下注册流程会同步创建资料行，但历史上存在注册成功而
// 资料未落库的情况，读取侧需要容忍缺行并补建。
type Profile struct {
	gorm.Model
	UserID uint   `gorm:"uniqueIndex;not null"`
	Email  string `gorm:"not null"`
	Name   string
	About  string `gorm:"type:text"`
	Role   string `gorm:"default:user"` // user, admin
}
