package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/parvesh-spec/messageforwarder/internal/model"
)

// ActiveRoute is everything a worker needs to relay one user's channel.
type ActiveRoute struct {
	Config       model.ForwardingConfig
	Account      model.TelegramAccount
	Replacements []model.TextReplacement
}

// RouteRepository assembles ActiveRoutes for the supervisor.
type RouteRepository struct {
	db *gorm.DB
}

func NewRouteRepository(db *gorm.DB) *RouteRepository {
	return &RouteRepository{db: db}
}

// ListActive returns a route for every active, fully configured user whose
// primary account holds a session.
func (r *RouteRepository) ListActive(ctx context.Context) ([]ActiveRoute, error) {
	configs, err := NewConfigRepository(r.db).ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active configs: %w", err)
	}

	replacements := NewReplacementRepository(r.db)
	accounts := NewAccountRepository(r.db)

	routes := make([]ActiveRoute, 0, len(configs))
	for _, cfg := range configs {
		account, err := accounts.Primary(ctx, cfg.UserID)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("primary account of user %d: %w", cfg.UserID, err)
		}
		if account.SessionString == "" {
			continue
		}

		rules, err := replacements.ListActiveByUser(ctx, cfg.UserID)
		if err != nil {
			return nil, fmt.Errorf("replacements of user %d: %w", cfg.UserID, err)
		}

		routes = append(routes, ActiveRoute{
			Config:       cfg,
			Account:      *account,
			Replacements: rules,
		})
	}
	return routes, nil
}

// Get returns userID's route regardless of its active flag.
func (r *RouteRepository) Get(ctx context.Context, userID uint) (*ActiveRoute, error) {
	cfg, err := NewConfigRepository(r.db).Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	account, err := NewAccountRepository(r.db).Primary(ctx, userID)
	if err != nil {
		return nil, err
	}
	rules, err := NewReplacementRepository(r.db).ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ActiveRoute{Config: *cfg, Account: *account, Replacements: rules}, nil
}
