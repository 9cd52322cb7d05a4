package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultProfile is the settings row used by a single-user install.
const DefaultProfile = "default"

// ProviderSettingRecord is one stored provider settings row.
type ProviderSettingRecord struct {
	Profile      string
	ProviderID   string
	ModelID      string
	BaseURL      string
	APIKeySealed []byte
	Shortcut     string
	UpdatedAt    time.Time
}

// UpsertProviderSettingParams controls provider settings writes.
type UpsertProviderSettingParams struct {
	Profile      string
	ProviderID   string
	ModelID      string
	BaseURL      string
	APIKeySealed []byte
	Shortcut     string
}

func (p *Pool) GetProviderSetting(ctx context.Context, profile string) (*ProviderSettingRecord, error) {
	const q = `
SELECT
	profile,
	provider_id,
	model_id,
	base_url,
	api_key_sealed,
	shortcut,
	updated_at
FROM glance.provider_settings
WHERE profile = $1
LIMIT 1
`

	var row ProviderSettingRecord
	if err := p.QueryRow(ctx, q, normalizeProfile(profile)).Scan(
		&row.Profile,
		&row.ProviderID,
		&row.ModelID,
		&row.BaseURL,
		&row.APIKeySealed,
		&row.Shortcut,
		&row.UpdatedAt,
	); err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query provider setting: %w", err)
	}
	return &row, nil
}

func (p *Pool) UpsertProviderSetting(ctx context.Context, params UpsertProviderSettingParams) (*ProviderSettingRecord, error) {
	providerID := strings.ToLower(strings.TrimSpace(params.ProviderID))
	if providerID == "" {
		return nil, fmt.Errorf("provider id is required")
	}

	const q = `
INSERT INTO glance.provider_settings (
	profile,
	provider_id,
	model_id,
	base_url,
	api_key_sealed,
	shortcut,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, now(), now())
ON CONFLICT (profile) DO UPDATE SET
	provider_id = EXCLUDED.provider_id,
	model_id = EXCLUDED.model_id,
	base_url = EXCLUDED.base_url,
	api_key_sealed = EXCLUDED.api_key_sealed,
	shortcut = EXCLUDED.shortcut,
	updated_at = now()
RETURNING
	profile,
	provider_id,
	model_id,
	base_url,
	api_key_sealed,
	shortcut,
	updated_at
`

	var row ProviderSettingRecord
	if err := p.QueryRow(ctx, q,
		normalizeProfile(params.Profile),
		providerID,
		strings.TrimSpace(params.ModelID),
		strings.TrimSpace(params.BaseURL),
		params.APIKeySealed,
		strings.TrimSpace(params.Shortcut),
	).Scan(
		&row.Profile,
		&row.ProviderID,
		&row.ModelID,
		&row.BaseURL,
		&row.APIKeySealed,
		&row.Shortcut,
		&row.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("upsert provider setting: %w", err)
	}
	return &row, nil
}

func normalizeProfile(profile string) string {
	trimmed := strings.ToLower(strings.TrimSpace(profile))
	if trimmed == "" {
		return DefaultProfile
	}
	return trimmed
}
