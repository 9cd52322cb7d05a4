package db

import "time"

// ProviderSetting maps glance.provider_settings. APIKeySealed holds the
// secretbox-sealed key; the plaintext never reaches the table.
type ProviderSetting struct {
	Profile      string    `gorm:"column:profile;type:text;primaryKey"`
	ProviderID   string    `gorm:"column:provider_id;type:text;not null"`
	ModelID      string    `gorm:"column:model_id;type:text;not null;default:''"`
	BaseURL      string    `gorm:"column:base_url;type:text;not null;default:''"`
	APIKeySealed []byte    `gorm:"column:api_key_sealed;type:bytea"`
	Shortcut     string    `gorm:"column:shortcut;type:text;not null;default:''"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ProviderSetting) TableName() string { return "glance.provider_settings" }

func autoMigrateModels() []any {
	return []any{
		&ProviderSetting{},
	}
}
