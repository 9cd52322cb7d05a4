package settings

import (
	"context"
	"fmt"

	"horse.fit/glance/internal/chat"
	"horse.fit/glance/internal/db"
)

// ProviderSettingQueries is the part of db.Pool the DB store uses.
type ProviderSettingQueries interface {
	GetProviderSetting(ctx context.Context, profile string) (*db.ProviderSettingRecord, error)
	UpsertProviderSetting(ctx context.Context, params db.UpsertProviderSettingParams) (*db.ProviderSettingRecord, error)
}

// DBStore keeps the Document in glance.provider_settings.
type DBStore struct {
	queries ProviderSettingQueries
	sealer  *Sealer
	profile string
}

func NewDBStore(queries ProviderSettingQueries, sealer *Sealer, profile string) (*DBStore, error) {
	if queries == nil {
		return nil, fmt.Errorf("settings queries are required")
	}
	if sealer == nil {
		return nil, fmt.Errorf("settings sealer is required")
	}
	if profile == "" {
		profile = db.DefaultProfile
	}
	return &DBStore{queries: queries, sealer: sealer, profile: profile}, nil
}

func (s *DBStore) Load(ctx context.Context) (Document, error) {
	row, err := s.queries.GetProviderSetting(ctx, s.profile)
	if err != nil {
		if db.IsNoRows(err) {
			return DefaultDocument(), nil
		}
		return Document{}, fmt.Errorf("load provider settings: %w", err)
	}

	apiKey, err := s.sealer.Open(row.APIKeySealed)
	if err != nil {
		return Document{}, fmt.Errorf("open api key for profile %q: %w", row.Profile, err)
	}

	return Document{
		Provider: chat.ProviderConfig{
			ProviderID: row.ProviderID,
			APIKey:     apiKey,
			BaseURL:    row.BaseURL,
			ModelID:    row.ModelID,
		},
		Shortcut: row.Shortcut,
	}.Normalized(), nil
}

func (s *DBStore) Save(ctx context.Context, doc Document) error {
	doc = doc.Normalized()
	sealed, err := s.sealer.Seal(doc.Provider.APIKey)
	if err != nil {
		return fmt.Errorf("seal api key: %w", err)
	}
	if _, err := s.queries.UpsertProviderSetting(ctx, db.UpsertProviderSettingParams{
		Profile:      s.profile,
		ProviderID:   doc.Provider.ProviderID,
		ModelID:      doc.Provider.ModelID,
		BaseURL:      doc.Provider.BaseURL,
		APIKeySealed: sealed,
		Shortcut:     doc.Shortcut,
	}); err != nil {
		return fmt.Errorf("save provider settings: %w", err)
	}
	return nil
}
