package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fablepress/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrProfileNotFound 在指定的作者资料不存在时返回
	ErrProfileNotFound = errors.New("profile not found")
)

// ProfileService 负责维护作者资料行
// 注册流程与读取侧的兜底补建都经由本服务，与 handler 解耦

type ProfileService struct {
	db *gorm.DB
}

// NewProfileService 构造 ProfileService
func NewProfileService(gdb *gorm.DB) *ProfileService {
	return &ProfileService{db: gdb}
}

// ProfileInput 描述更新资料时可设置的字段
// Name/About 使用指针判断是否显式传入

type ProfileInput struct {
	Name  *string
	About *string
}

// GetByUserID 根据账号 ID 获取作者资料
func (s *ProfileService) GetByUserID(userID uint) (*db.Profile, error) {
	var profile db.Profile
	if err := s.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &profile, nil
}

// GetOrCreate 获取作者资料，缺行时补建一条。注册流程正常会写入资料行，
// 但邮箱确认等旁路可能让账号先于资料存在；这里是读取侧的兜底创建路径。
// 并发补建同一行时依赖 user_id 唯一索引兜底：创建失败后回读一次，
// 谁先成功用谁的。
func (s *ProfileService) GetOrCreate(userID uint, email, name string) (*db.Profile, error) {
	var profile db.Profile
	err := s.db.Where("user_id = ?", userID).First(&profile).Error
	if err == nil {
		return &profile, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	profile = db.Profile{
		UserID: userID,
		Email:  strings.TrimSpace(email),
		Name:   defaultProfileName(name, email),
		Role:   "user",
	}

	if createErr := s.db.Create(&profile).Error; createErr != nil {
		// 可能输给了并发的补建，回读确认
		var winner db.Profile
		if err := s.db.Where("user_id = ?", userID).First(&winner).Error; err == nil {
			return &winner, nil
		}
		return nil, fmt.Errorf("create profile: %w", createErr)
	}

	return &profile, nil
}

// Update 应用资料修改，仅更新显式传入的字段
func (s *ProfileService) Update(userID uint, input ProfileInput) (*db.Profile, error) {
	profile, err := s.GetByUserID(userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.About != nil {
		updates["about"] = *input.About
	}

	if len(updates) == 0 {
		return profile, nil
	}

	if err := s.db.Model(profile).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	return profile, nil
}

// defaultProfileName 取显式名字，否则退回邮箱本地段，再退回固定值。
func defaultProfileName(name, email string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed != "" {
		return trimmed
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return "User"
}
