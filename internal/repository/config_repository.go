package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parvesh-spec/messageforwarder/internal/model"
)

// ConfigRepository stores the per-user forwarding configuration.
type ConfigRepository struct {
	db *gorm.DB
}

func NewConfigRepository(db *gorm.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) Get(ctx context.Context, userID uint) (*model.ForwardingConfig, error) {
	var cfg model.ForwardingConfig
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&cfg).Error; err != nil {
		return nil, translate(err)
	}
	return &cfg, nil
}

// GetOrDefault returns the stored configuration or an unsaved inactive one.
func (r *ConfigRepository) GetOrDefault(ctx context.Context, userID uint) (*model.ForwardingConfig, error) {
	cfg, err := r.Get(ctx, userID)
	if err == ErrNotFound {
		return &model.ForwardingConfig{UserID: userID, ReplacementsEnabled: true}, nil
	}
	return cfg, err
}

// SaveChannels upserts the source and destination of userID's route.
func (r *ConfigRepository) SaveChannels(ctx context.Context, cfg *model.ForwardingConfig) (*model.ForwardingConfig, error) {
	row := model.ForwardingConfig{
		UserID:               cfg.UserID,
		SourceChannelID:      cfg.SourceChannelID,
		SourceTitle:          cfg.SourceTitle,
		DestinationChannelID: cfg.DestinationChannelID,
		DestinationTitle:     cfg.DestinationTitle,
		ReplacementsEnabled:  true,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source_channel_id",
			"source_title",
			"destination_channel_id",
			"destination_title",
			"updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return nil, fmt.Errorf("save config: %w", translate(err))
	}
	return r.Get(ctx, cfg.UserID)
}

func (r *ConfigRepository) SetActive(ctx context.Context, userID uint, active bool) error {
	return r.setFlag(ctx, userID, "is_active", active)
}

func (r *ConfigRepository) SetReplacementsEnabled(ctx context.Context, userID uint, enabled bool) error {
	return r.setFlag(ctx, userID, "replacements_enabled", enabled)
}

func (r *ConfigRepository) setFlag(ctx context.Context, userID uint, column string, value bool) error {
	res := r.db.WithContext(ctx).Model(&model.ForwardingConfig{}).Where("user_id = ?", userID).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ConfigRepository) ListActive(ctx context.Context) ([]model.ForwardingConfig, error) {
	var configs []model.ForwardingConfig
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND source_channel_id <> 0 AND destination_channel_id <> 0", true).
		Order("user_id").
		Find(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}
