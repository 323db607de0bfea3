package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/parvesh-spec/messageforwarder/internal/model"
)

// AccountRepository stores linked Telegram accounts and their sessions.
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Link creates or refreshes the account for (userID, phone). The first
// account a user links becomes primary.
func (r *AccountRepository) Link(ctx context.Context, account *model.TelegramAccount) (*model.TelegramAccount, error) {
	var out model.TelegramAccount
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.TelegramAccount{}).Where("user_id = ?", account.UserID).Count(&count).Error; err != nil {
			return err
		}

		err := tx.Where("user_id = ? AND phone = ?", account.UserID, account.Phone).First(&out).Error
		switch {
		case err == nil:
			updates := map[string]interface{}{
				"telegram_user_id": account.TelegramUserID,
				"username":         account.Username,
				"first_name":       account.FirstName,
				"last_name":        account.LastName,
				"session_string":   account.SessionString,
			}
			if err := tx.Model(&out).Updates(updates).Error; err != nil {
				return err
			}
			return nil
		case err == gorm.ErrRecordNotFound:
			out = *account
			out.ID = 0
			out.IsPrimary = count == 0
			return tx.Create(&out).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, fmt.Errorf("link account: %w", translate(err))
	}
	return &out, nil
}

func (r *AccountRepository) ListByUser(ctx context.Context, userID uint) ([]model.TelegramAccount, error) {
	var accounts []model.TelegramAccount
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_primary DESC, id").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, userID, id uint) (*model.TelegramAccount, error) {
	var account model.TelegramAccount
	if err := r.db.WithContext(ctx).Where("user_id = ? AND id = ?", userID, id).First(&account).Error; err != nil {
		return nil, translate(err)
	}
	return &account, nil
}

func (r *AccountRepository) Primary(ctx context.Context, userID uint) (*model.TelegramAccount, error) {
	var account model.TelegramAccount
	err := r.db.WithContext(ctx).Where("user_id = ? AND is_primary = ?", userID, true).First(&account).Error
	if err != nil {
		return nil, translate(err)
	}
	return &account, nil
}

// SetPrimary makes id the only primary account of userID.
func (r *AccountRepository) SetPrimary(ctx context.Context, userID, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account model.TelegramAccount
		if err := tx.Where("user_id = ? AND id = ?", userID, id).First(&account).Error; err != nil {
			return translate(err)
		}
		if err := tx.Model(&model.TelegramAccount{}).Where("user_id = ?", userID).Update("is_primary", false).Error; err != nil {
			return fmt.Errorf("clear primary: %w", err)
		}
		if err := tx.Model(&account).Update("is_primary", true).Error; err != nil {
			return fmt.Errorf("set primary: %w", err)
		}
		return nil
	})
}

// Delete unlinks an account. When the primary is removed the oldest
// remaining account is promoted.
func (r *AccountRepository) Delete(ctx context.Context, userID, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account model.TelegramAccount
		if err := tx.Where("user_id = ? AND id = ?", userID, id).First(&account).Error; err != nil {
			return translate(err)
		}
		if err := tx.Delete(&account).Error; err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		if !account.IsPrimary {
			return nil
		}

		var next model.TelegramAccount
		err := tx.Where("user_id = ?", userID).Order("id").First(&next).Error
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Model(&next).Update("is_primary", true).Error
	})
}

func (r *AccountRepository) LoadSession(ctx context.Context, id uint) (string, error) {
	var account model.TelegramAccount
	err := r.db.WithContext(ctx).Select("id", "session_string").First(&account, id).Error
	if err != nil {
		return "", translate(err)
	}
	return account.SessionString, nil
}

func (r *AccountRepository) SaveSession(ctx context.Context, id uint, session string) error {
	res := r.db.WithContext(ctx).Model(&model.TelegramAccount{}).Where("id = ?", id).Update("session_string", session)
	if res.Error != nil {
		return fmt.Errorf("save session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
