package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parvesh-spec/messageforwarder/internal/model"
)

// ReplacementRepository stores text replacement rules.
type ReplacementRepository struct {
	db *gorm.DB
}

func NewReplacementRepository(db *gorm.DB) *ReplacementRepository {
	return &ReplacementRepository{db: db}
}

func (r *ReplacementRepository) ListByUser(ctx context.Context, userID uint) ([]model.TextReplacement, error) {
	var rules []model.TextReplacement
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *ReplacementRepository) ListActiveByUser(ctx context.Context, userID uint) ([]model.TextReplacement, error) {
	var rules []model.TextReplacement
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("id").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *ReplacementRepository) Create(ctx context.Context, userID uint, original, replacement string) (*model.TextReplacement, error) {
	rule := model.TextReplacement{
		UserID:      userID,
		Original:    original,
		Replacement: replacement,
		IsActive:    true,
	}
	if err := r.db.WithContext(ctx).Create(&rule).Error; err != nil {
		return nil, fmt.Errorf("create replacement: %w", translate(err))
	}
	return &rule, nil
}

// Upsert sets the replacement for original, reactivating an existing rule.
func (r *ReplacementRepository) Upsert(ctx context.Context, userID uint, original, replacement string) (*model.TextReplacement, error) {
	rule := model.TextReplacement{
		UserID:      userID,
		Original:    original,
		Replacement: replacement,
		IsActive:    true,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "original"}},
		DoUpdates: clause.AssignmentColumns([]string{"replacement", "is_active", "updated_at"}),
	}).Create(&rule).Error
	if err != nil {
		return nil, fmt.Errorf("upsert replacement: %w", translate(err))
	}

	var out model.TextReplacement
	if err := r.db.WithContext(ctx).Where("user_id = ? AND original = ?", userID, original).First(&out).Error; err != nil {
		return nil, translate(err)
	}
	return &out, nil
}

// Toggle flips the active flag and returns the updated rule.
func (r *ReplacementRepository) Toggle(ctx context.Context, userID, id uint) (*model.TextReplacement, error) {
	var rule model.TextReplacement
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND id = ?", userID, id).First(&rule).Error; err != nil {
			return translate(err)
		}
		rule.IsActive = !rule.IsActive
		return tx.Model(&rule).Update("is_active", rule.IsActive).Error
	})
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *ReplacementRepository) Delete(ctx context.Context, userID, id uint) error {
	res := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).Delete(&model.TextReplacement{})
	if res.Error != nil {
		return fmt.Errorf("delete replacement: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll removes every rule of userID and reports how many were removed.
func (r *ReplacementRepository) DeleteAll(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.TextReplacement{})
	if res.Error != nil {
		return 0, fmt.Errorf("clear replacements: %w", res.Error)
	}
	return res.RowsAffected, nil
}
