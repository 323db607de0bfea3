package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parvesh-spec/messageforwarder/internal/channelid"
	"github.com/parvesh-spec/messageforwarder/internal/model"
	"github.com/parvesh-spec/messageforwarder/internal/repository"
	"github.com/parvesh-spec/messageforwarder/internal/telegram"
)

const (
	DefaultLogLimit = 50
	MaxLogLimit     = 500
)

// Notifier is poked after every change that affects running workers.
type Notifier interface {
	Trigger()
}

// ChannelResolver looks channels up through a linked account.
type ChannelResolver interface {
	Resolve(ctx context.Context, accountID uint, ref channelid.Ref) (telegram.Channel, error)
	Forget(accountID uint)
}

type Stores struct {
	Configs      *repository.ConfigRepository
	Accounts     *repository.AccountRepository
	Replacements *repository.ReplacementRepository
	Logs         *repository.LogRepository
}

type SettingsService struct {
	stores   Stores
	resolver ChannelResolver
	notifier Notifier
	log      *zap.Logger
}

// NewSettingsService wires the settings use cases. resolver and notifier may
// be nil.
func NewSettingsService(stores Stores, resolver ChannelResolver, notifier Notifier, log *zap.Logger) *SettingsService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SettingsService{
		stores:   stores,
		resolver: resolver,
		notifier: notifier,
		log:      log.Named("settings"),
	}
}

// Dashboard is everything the dashboard page renders for one user.
type Dashboard struct {
	Config       *model.ForwardingConfig
	Accounts     []model.TelegramAccount
	Primary      *model.TelegramAccount
	Replacements []model.TextReplacement
	Logs         []model.ForwardingLog
	LogCount     int64
}

func (s *SettingsService) Dashboard(ctx context.Context, userID uint) (*Dashboard, error) {
	cfg, err := s.stores.Configs.GetOrDefault(ctx, userID)
	if err != nil {
		return nil, err
	}
	accounts, err := s.stores.Accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rules, err := s.stores.Replacements.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	logs, err := s.RecentLogs(ctx, userID, DefaultLogLimit)
	if err != nil {
		return nil, err
	}
	count, err := s.stores.Logs.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		Config:       cfg,
		Accounts:     accounts,
		Replacements: rules,
		Logs:         logs,
		LogCount:     count,
	}
	for i := range accounts {
		if accounts[i].IsPrimary {
			d.Primary = &accounts[i]
			break
		}
	}
	return d, nil
}

func (s *SettingsService) Config(ctx context.Context, userID uint) (*model.ForwardingConfig, error) {
	return s.stores.Configs.GetOrDefault(ctx, userID)
}

// SaveConfig stores the source and destination channels. Usernames and links
// are resolved through the primary account; numeric ids are accepted as
// given and only decorated with a title when the lookup succeeds.
func (s *SettingsService) SaveConfig(ctx context.Context, userID uint, source, destination string) (*model.ForwardingConfig, error) {
	srcRef, err := channelid.ParseRef(source)
	if err != nil {
		return nil, invalid("source", "%v", err)
	}
	dstRef, err := channelid.ParseRef(destination)
	if err != nil {
		return nil, invalid("destination", "%v", err)
	}

	src, err := s.resolve(ctx, userID, "source", srcRef)
	if err != nil {
		return nil, err
	}
	dst, err := s.resolve(ctx, userID, "destination", dstRef)
	if err != nil {
		return nil, err
	}
	if src.ID == dst.ID {
		return nil, invalid("destination", "source and destination must differ")
	}

	cfg, err := s.stores.Configs.SaveChannels(ctx, &model.ForwardingConfig{
		UserID:               userID,
		SourceChannelID:      src.ID,
		SourceTitle:          src.Title,
		DestinationChannelID: dst.ID,
		DestinationTitle:     dst.Title,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Forwarding config saved",
		zap.Uint("user_id", userID),
		zap.Int64("source", cfg.SourceChannelID),
		zap.Int64("destination", cfg.DestinationChannelID),
	)
	s.notify()
	return cfg, nil
}

func (s *SettingsService) resolve(ctx context.Context, userID uint, field string, ref channelid.Ref) (telegram.Channel, error) {
	var account *model.TelegramAccount
	if s.resolver != nil {
		primary, err := s.stores.Accounts.Primary(ctx, userID)
		switch {
		case err == nil:
			account = primary
		case !errors.Is(err, repository.ErrNotFound):
			return telegram.Channel{}, err
		}
	}

	if account == nil {
		if ref.Username != "" {
			return telegram.Channel{}, invalid(field, "link a Telegram account to use channel usernames")
		}
		return telegram.Channel{ID: ref.ID}, nil
	}

	ch, err := s.resolver.Resolve(ctx, account.ID, ref)
	if err == nil {
		return ch, nil
	}
	if ref.Username != "" {
		if errors.Is(err, telegram.ErrChannelNotFound) {
			return telegram.Channel{}, invalid(field, "channel @%s not found", ref.Username)
		}
		return telegram.Channel{}, fmt.Errorf("resolve %s: %w", field, err)
	}

	s.log.Warn("Channel lookup failed, saving id without title",
		zap.Uint("user_id", userID),
		zap.Int64("channel_id", ref.ID),
		zap.Error(err),
	)
	return telegram.Channel{ID: ref.ID}, nil
}

// SetActive starts or stops forwarding. Starting requires both channels and a
// linked account.
func (s *SettingsService) SetActive(ctx context.Context, userID uint, active bool) error {
	if active {
		cfg, err := s.stores.Configs.Get(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && !cfg.Configured()) {
			return invalid("status", "set source and destination channels first")
		}
		if err != nil {
			return err
		}
		if _, err := s.stores.Accounts.Primary(ctx, userID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return invalid("status", "link a Telegram account first")
			}
			return err
		}
	}

	err := s.stores.Configs.SetActive(ctx, userID, active)
	if errors.Is(err, repository.ErrNotFound) {
		// Stopping something never configured.
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info("Forwarding toggled", zap.Uint("user_id", userID), zap.Bool("active", active))
	s.notify()
	return nil
}

func (s *SettingsService) SetReplacementsEnabled(ctx context.Context, userID uint, enabled bool) error {
	err := s.stores.Configs.SetReplacementsEnabled(ctx, userID, enabled)
	if errors.Is(err, repository.ErrNotFound) {
		return invalid("status", "set source and destination channels first")
	}
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *SettingsService) Replacements(ctx context.Context, userID uint) ([]model.TextReplacement, error) {
	return s.stores.Replacements.ListByUser(ctx, userID)
}

func (s *SettingsService) AddReplacement(ctx context.Context, userID uint, original, replacement string) (*model.TextReplacement, error) {
	if strings.TrimSpace(original) == "" {
		return nil, invalid("original", "original text is required")
	}
	rule, err := s.stores.Replacements.Create(ctx, userID, original, replacement)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, invalid("original", "a replacement for %q already exists", original)
	}
	if err != nil {
		return nil, err
	}
	s.notify()
	return rule, nil
}

func (s *SettingsService) ToggleReplacement(ctx context.Context, userID, id uint) (*model.TextReplacement, error) {
	rule, err := s.stores.Replacements.Toggle(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	s.notify()
	return rule, nil
}

func (s *SettingsService) DeleteReplacement(ctx context.Context, userID, id uint) error {
	if err := s.stores.Replacements.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.notify()
	return nil
}

func (s *SettingsService) Accounts(ctx context.Context, userID uint) ([]model.TelegramAccount, error) {
	return s.stores.Accounts.ListByUser(ctx, userID)
}

// PrimaryAccount returns ErrNoAccount when nothing is linked.
func (s *SettingsService) PrimaryAccount(ctx context.Context, userID uint) (*model.TelegramAccount, error) {
	account, err := s.stores.Accounts.Primary(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoAccount
	}
	return account, err
}

// LinkAccount stores a freshly authorized Telegram login.
func (s *SettingsService) LinkAccount(ctx context.Context, userID uint, authz *telegram.Authorized) (*model.TelegramAccount, error) {
	if authz == nil || authz.Session == "" {
		return nil, errors.New("link account: empty session")
	}
	account, err := s.stores.Accounts.Link(ctx, &model.TelegramAccount{
		UserID:         userID,
		Phone:          authz.Phone,
		TelegramUserID: authz.UserID,
		Username:       authz.Username,
		FirstName:      authz.FirstName,
		LastName:       authz.LastName,
		SessionString:  authz.Session,
	})
	if err != nil {
		return nil, err
	}
	if s.resolver != nil {
		s.resolver.Forget(account.ID)
	}

	s.log.Info("Telegram account linked",
		zap.Uint("user_id", userID),
		zap.Uint("account_id", account.ID),
		zap.Bool("primary", account.IsPrimary),
	)
	s.notify()
	return account, nil
}

func (s *SettingsService) SwitchPrimary(ctx context.Context, userID, accountID uint) error {
	if err := s.stores.Accounts.SetPrimary(ctx, userID, accountID); err != nil {
		return err
	}
	s.log.Info("Primary account switched", zap.Uint("user_id", userID), zap.Uint("account_id", accountID))
	s.notify()
	return nil
}

func (s *SettingsService) Unlink(ctx context.Context, userID, accountID uint) error {
	if err := s.stores.Accounts.Delete(ctx, userID, accountID); err != nil {
		return err
	}
	if s.resolver != nil {
		s.resolver.Forget(accountID)
	}
	s.log.Info("Telegram account unlinked", zap.Uint("user_id", userID), zap.Uint("account_id", accountID))
	s.notify()
	return nil
}

// RecentLogs returns the newest forwarding logs, limit clamped to
// [1, MaxLogLimit] with DefaultLogLimit for non-positive values.
func (s *SettingsService) RecentLogs(ctx context.Context, userID uint, limit int) ([]model.ForwardingLog, error) {
	return s.stores.Logs.ListRecent(ctx, userID, ClampLogLimit(limit))
}

func ClampLogLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLogLimit
	case limit > MaxLogLimit:
		return MaxLogLimit
	default:
		return limit
	}
}

func (s *SettingsService) notify() {
	if s.notifier != nil {
		s.notifier.Trigger()
	}
}
