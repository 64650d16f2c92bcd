package db

import "gorm.io/gorm"

// SystemSetting 存储后台可配置的系统级键值对。
type SystemSetting struct {
	gorm.Model
	Key   string `gorm:"size:100;uniqueIndex;not null"`
	Value string `gorm:"type:text"`
}

// TableName 自定义表名以保持命名一致。
func (SystemSetting) TableName() string {
	return "system_settings"
}

const (
	// SettingKeySiteName 表示站点名称。
	SettingKeySiteName = "site_name"
	// SettingKeyTextAPIKey 表示文本生成服务的 API Key。
	SettingKeyTextAPIKey = "text_api_key"
	// SettingKeyTextModel 表示文本生成所用的模型名称。
	SettingKeyTextModel = "text_model"
	// SettingKeyImageAPIToken 表示图片生成服务的 API Token。
	SettingKeyImageAPIToken = "image_api_token"
	// SettingKeyImageModel 表示图片生成所用的模型名称。
	SettingKeyImageModel = "image_model"
	// SettingKeyImageStyleSuffix 表示追加到所有插画提示词后的统一风格后缀。
	SettingKeyImageStyleSuffix = "image_style_suffix"
)
