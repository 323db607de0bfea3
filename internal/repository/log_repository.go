package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/parvesh-spec/messageforwarder/internal/model"
)

// LogRepository stores relayed messages.
type LogRepository struct {
	db *gorm.DB
}

func NewLogRepository(db *gorm.DB) *LogRepository {
	return &LogRepository{db: db}
}

func (r *LogRepository) Create(ctx context.Context, entry *model.ForwardingLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("create log: %w", err)
	}
	return nil
}

// MappingKey identifies a source message under one source and destination
// pairing. A config keeps its id when its channels change, so the channels
// are part of the key.
type MappingKey struct {
	ConfigID             uint
	SourceChannelID      int64
	DestinationChannelID int64
	SourceMessageID      int
}

// FindMapping returns the record of the original relay of a source message.
func (r *LogRepository) FindMapping(ctx context.Context, key MappingKey) (*model.ForwardingLog, error) {
	var entry model.ForwardingLog
	err := r.db.WithContext(ctx).
		Where("config_id = ? AND source_channel_id = ? AND source_message_id = ?",
			key.ConfigID, key.SourceChannelID, key.SourceMessageID).
		Where("destination_channel_id = ? AND action IN ?", key.DestinationChannelID,
			[]string{model.ActionForward, model.ActionCopy}).
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		return nil, translate(err)
	}
	return &entry, nil
}

func (r *LogRepository) ListRecent(ctx context.Context, userID uint, limit int) ([]model.ForwardingLog, error) {
	var entries []model.ForwardingLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ListSince returns userID's records created at or after since, oldest first.
// A zero userID selects every user.
func (r *LogRepository) ListSince(ctx context.Context, userID uint, since time.Time) ([]model.ForwardingLog, error) {
	q := r.db.WithContext(ctx).Where("created_at >= ?", since)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	var entries []model.ForwardingLog
	if err := q.Order("id").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *LogRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.ForwardingLog{}).Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// PruneBefore deletes records older than cutoff.
func (r *LogRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.ForwardingLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune logs: %w", res.Error)
	}
	return res.RowsAffected, nil
}
