package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fablepress/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultSiteName         = "FablePress"
	defaultTextModel        = "gemini-2.0-flash-exp"
	defaultImageModel       = "black-forest-labs/flux-schnell"
	defaultImageStyleSuffix = ", vibrant colors, cartoon style, children's book illustration, high quality, detailed"
)

// ErrAIAPIKeyMissing 表示未提供必需的 AI 平台 API Key。
var ErrAIAPIKeyMissing = errors.New("api key is required")

// SystemSettings 描述后台可配置的系统信息。
type SystemSettings struct {
	SiteName         string
	TextAPIKey       string
	TextModel        string
	ImageAPIToken    string
	ImageModel       string
	ImageStyleSuffix string
}

// SystemSettingsInput 用于更新系统设置。
type SystemSettingsInput struct {
	SiteName         string
	TextAPIKey       string
	TextModel        string
	ImageAPIToken    string
	ImageModel       string
	ImageStyleSuffix string
}

// SystemSettingService 提供系统设置的读取与更新能力。
type SystemSettingService struct {
	db *gorm.DB
}

// NewSystemSettingService 构造 SystemSettingService。
func NewSystemSettingService(gdb *gorm.DB) *SystemSettingService {
	return &SystemSettingService{db: gdb}
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

var settingKeys = []string{
	db.SettingKeySiteName,
	db.SettingKeyTextAPIKey,
	db.SettingKeyTextModel,
	db.SettingKeyImageAPIToken,
	db.SettingKeyImageModel,
	db.SettingKeyImageStyleSuffix,
}

// GetSettings 读取系统设置，如未设置将返回默认值。
func (s *SystemSettingService) GetSettings() (SystemSettings, error) {
	result := SystemSettings{
		SiteName:         defaultSiteName,
		TextModel:        defaultTextModel,
		ImageModel:       defaultImageModel,
		ImageStyleSuffix: defaultImageStyleSuffix,
	}

	var records []db.SystemSetting
	if err := s.db.Where("key IN ?", settingKeys).Find(&records).Error; err != nil {
		return result, fmt.Errorf("load system settings: %w", err)
	}

	for _, record := range records {
		value := record.Value
		switch record.Key {
		case db.SettingKeySiteName:
			if strings.TrimSpace(value) != "" {
				result.SiteName = value
			}
		case db.SettingKeyTextAPIKey:
			result.TextAPIKey = value
		case db.SettingKeyTextModel:
			if strings.TrimSpace(value) != "" {
				result.TextModel = value
			}
		case db.SettingKeyImageAPIToken:
			result.ImageAPIToken = value
		case db.SettingKeyImageModel:
			if strings.TrimSpace(value) != "" {
				result.ImageModel = value
			}
		case db.SettingKeyImageStyleSuffix:
			if strings.TrimSpace(value) != "" {
				result.ImageStyleSuffix = value
			}
		}
	}

	return result, nil
}

// UpdateSettings 保存系统设置，未填写站点名称与模型时回退默认值。
func (s *SystemSettingService) UpdateSettings(input SystemSettingsInput) (SystemSettings, error) {
	sanitized := SystemSettings{
		SiteName:         strings.TrimSpace(input.SiteName),
		TextAPIKey:       strings.TrimSpace(input.TextAPIKey),
		TextModel:        strings.TrimSpace(input.TextModel),
		ImageAPIToken:    strings.TrimSpace(input.ImageAPIToken),
		ImageModel:       strings.TrimSpace(input.ImageModel),
		ImageStyleSuffix: input.ImageStyleSuffix,
	}

	if sanitized.SiteName == "" {
		sanitized.SiteName = defaultSiteName
	}
	if sanitized.TextModel == "" {
		sanitized.TextModel = defaultTextModel
	}
	if sanitized.ImageModel == "" {
		sanitized.ImageModel = defaultImageModel
	}
	if strings.TrimSpace(sanitized.ImageStyleSuffix) == "" {
		sanitized.ImageStyleSuffix = defaultImageStyleSuffix
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		pairs := []struct {
			key   string
			value string
		}{
			{db.SettingKeySiteName, sanitized.SiteName},
			{db.SettingKeyTextAPIKey, sanitized.TextAPIKey},
			{db.SettingKeyTextModel, sanitized.TextModel},
			{db.SettingKeyImageAPIToken, sanitized.ImageAPIToken},
			{db.SettingKeyImageModel, sanitized.ImageModel},
			{db.SettingKeyImageStyleSuffix, sanitized.ImageStyleSuffix},
		}
		for _, pair := range pairs {
			if err := upsertSetting(tx, pair.key, pair.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SystemSettings{}, fmt.Errorf("update system settings: %w", err)
	}

	return sanitized, nil
}

// SeedCredentials 将环境变量里的密钥写入空白的设置项，不覆盖后台已保存的值。
func (s *SystemSettingService) SeedCredentials(textAPIKey, imageAPIToken string) error {
	current, err := s.GetSettings()
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if current.TextAPIKey == "" && strings.TrimSpace(textAPIKey) != "" {
			if err := upsertSetting(tx, db.SettingKeyTextAPIKey, strings.TrimSpace(textAPIKey)); err != nil {
				return err
			}
		}
		if current.ImageAPIToken == "" && strings.TrimSpace(imageAPIToken) != "" {
			if err := upsertSetting(tx, db.SettingKeyImageAPIToken, strings.TrimSpace(imageAPIToken)); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertSetting(tx *gorm.DB, key, value string) error {
	setting := db.SystemSetting{Key: key, Value: value}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      value,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&setting).Error; err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}
