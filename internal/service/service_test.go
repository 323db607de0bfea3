package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/parvesh-spec/messageforwarder/internal/channelid"
	"github.com/parvesh-spec/messageforwarder/internal/config"
	"github.com/parvesh-spec/messageforwarder/internal/database"
	"github.com/parvesh-spec/messageforwarder/internal/model"
	"github.com/parvesh-spec/messageforwarder/internal/repository"
	"github.com/parvesh-spec/messageforwarder/internal/telegram"
)

type testEnv struct {
	auth     *AuthService
	settings *SettingsService
	stores   Stores
	resolver *fakeResolver
	notifier *countNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "service.db"),
	}, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close(db) })

	stores := Stores{
		Configs:      repository.NewConfigRepository(db),
		Accounts:     repository.NewAccountRepository(db),
		Replacements: repository.NewReplacementRepository(db),
		Logs:         repository.NewLogRepository(db),
	}
	auth := NewAuthService(repository.NewUserRepository(db))
	auth.cost = bcrypt.MinCost

	resolver := &fakeResolver{channels: map[int64]telegram.Channel{}, usernames: map[string]telegram.Channel{}}
	notifier := &countNotifier{}
	return &testEnv{
		auth:     auth,
		settings: NewSettingsService(stores, resolver, notifier, nil),
		stores:   stores,
		resolver: resolver,
		notifier: notifier,
	}
}

func (e *testEnv) register(t *testing.T, email string) *model.User {
	t.Helper()
	user, err := e.auth.Register(context.Background(), email, "password123", "password123")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return user
}

func (e *testEnv) link(t *testing.T, userID uint, phone string) *model.TelegramAccount {
	t.Helper()
	account, err := e.settings.LinkAccount(context.Background(), userID, &telegram.Authorized{
		Session: "session-" + phone,
		UserID:  42,
		Phone:   phone,
	})
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	return account
}

type fakeResolver struct {
	channels  map[int64]telegram.Channel
	usernames map[string]telegram.Channel
	forgotten []uint
	err       error
}

func (f *fakeResolver) Resolve(_ context.Context, _ uint, ref channelid.Ref) (telegram.Channel, error) {
	if f.err != nil {
		return telegram.Channel{}, f.err
	}
	if ref.Username != "" {
		ch, ok := f.usernames[ref.Username]
		if !ok {
			return telegram.Channel{}, telegram.ErrChannelNotFound
		}
		return ch, nil
	}
	ch, ok := f.channels[ref.ID]
	if !ok {
		return telegram.Channel{}, telegram.ErrChannelNotFound
	}
	return ch, nil
}

func (f *fakeResolver) Forget(accountID uint) {
	f.forgotten = append(f.forgotten, accountID)
}

type countNotifier struct{ n int }

func (c *countNotifier) Trigger() { c.n++ }

func validationField(err error) string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Field
	}
	return ""
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	tests := []struct {
		name      string
		email     string
		password  string
		confirm   string
		wantField string
	}{
		{"empty email", "", "password123", "password123", "email"},
		{"bad email", "not-an-email", "password123", "password123", "email"},
		{"display name", "Bob <bob@example.com>", "password123", "password123", "email"},
		{"short password", "bob@example.com", "short", "short", "password"},
		{"mismatch", "bob@example.com", "password123", "password124", "confirm_password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.Register(ctx, tt.email, tt.password, tt.confirm)
			if got := validationField(err); got != tt.wantField {
				t.Errorf("field = %q, want %q (err %v)", got, tt.wantField, err)
			}
		})
	}

	user := env.register(t, "bob@example.com")
	if user.PasswordHash == "password123" || user.PasswordHash == "" {
		t.Error("password not hashed")
	}

	_, err := env.auth.Register(ctx, "BOB@example.com", "password123", "password123")
	if validationField(err) != "email" {
		t.Errorf("duplicate email: %v", err)
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.register(t, "alice@example.com")

	if _, err := env.auth.Login(ctx, "alice@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", err)
	}
	if _, err := env.auth.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: %v", err)
	}

	user, err := env.auth.Login(ctx, " Alice@Example.com ", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.LastLoginAt == nil {
		t.Error("last login not set")
	}
	stored, err := env.auth.User(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.LastLoginAt == nil {
		t.Error("last login not persisted")
	}
}

func TestSaveConfigWithoutAccount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.register(t, "a@example.com")

	if _, err := env.settings.SaveConfig(ctx, user.ID, "", "-1002222222222"); validationField(err) != "source" {
		t.Errorf("empty source: %v", err)
	}
	if _, err := env.settings.SaveConfig(ctx, user.ID, "@somechannel", "-1002222222222"); validationField(err) != "source" {
		t.Errorf("username without account: %v", err)
	}
	if _, err := env.settings.SaveConfig(ctx, user.ID, "1111111111", "-1001111111111"); validationField(err) != "destination" {
		t.Errorf("same channel: %v", err)
	}

	cfg, err := env.settings.SaveConfig(ctx, user.ID, "1111111111", "-1002222222222")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if cfg.SourceChannelID != -1001111111111 || cfg.DestinationChannelID != -1002222222222 {
		t.Errorf("unexpected ids: %+v", cfg)
	}
	if cfg.IsActive {
		t.Error("new config must be inactive")
	}
	if env.notifier.n != 1 {
		t.Errorf("notifications = %d", env.notifier.n)
	}
}

func TestSaveConfigResolvesTitles(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.register(t, "a@example.com")
	env.link(t, user.ID, "+15550000001")

	env.resolver.channels[-1001111111111] = telegram.Channel{ID: -1001111111111, Title: "Source"}
	env.resolver.usernames["dest_channel"] = telegram.Channel{ID: -1002222222222, Title: "Dest"}

	cfg, err := env.settings.SaveConfig(ctx, user.ID, "-1001111111111", "https://t.me/dest_channel")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if cfg.SourceTitle != "Source" || cfg.DestinationTitle != "Dest" || cfg.DestinationChannelID != -1002222222222 {
		t.Errorf("unexpected config: %+v", cfg)
	}

	// Unknown numeric ids are kept without a title.
	cfg, err = env.settings.SaveConfig(ctx, user.ID, "-1003333333333", "@dest_channel")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if cfg.SourceChannelID != -1003333333333 || cfg.SourceTitle != "" {
		t.Errorf("unexpected source: %+v", cfg)
	}

	if _, err := env.settings.SaveConfig(ctx, user.ID, "@missing_channel", "@dest_channel"); validationField(err) != "source" {
		t.Errorf("unknown username: %v", err)
	}

	env.resolver.err = errors.New("network down")
	if _, err := env.settings.SaveConfig(ctx, user.ID, "@dest_channel", "-1001111111111"); err == nil || IsValidation(err) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestSetActive(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.register(t, "a@example.com")

	if err := env.settings.SetActive(ctx, user.ID, false); err != nil {
		t.Errorf("stopping unconfigured route: %v", err)
	}
	if err := env.settings.SetActive(ctx, user.ID, true); validationField(err) != "status" {
		t.Errorf("start without config: %v", err)
	}

	if _, err := env.settings.SaveConfig(ctx, user.ID, "-1001111111111", "-1002222222222"); err != nil {
		t.Fatal(err)
	}
	if err := env.settings.SetActive(ctx, user.ID, true); validationField(err) != "status" {
		t.Errorf("start without account: %v", err)
	}

	env.link(t, user.ID, "+15550000001")
	if err := env.settings.SetActive(ctx, user.ID, true); err != nil {
		t.Fatalf("start: %v", err)
	}
	cfg, err := env.settings.Config(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.IsActive {
		t.Error("config not active")
	}

	if err := env.settings.SetReplacementsEnabled(ctx, user.ID, false); err != nil {
		t.Fatal(err)
	}
	cfg, _ = env.settings.Config(ctx, user.ID)
	if cfg.ReplacementsEnabled {
		t.Error("replacements still enabled")
	}
}

func TestReplacements(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.register(t, "a@example.com")

	if _, err := env.settings.AddReplacement(ctx, user.ID, "  ", "x"); validationField(err) != "original" {
		t.Errorf("blank original: %v", err)
	}
	rule, err := env.settings.AddReplacement(ctx, user.ID, "hello", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.settings.AddReplacement(ctx, user.ID, "hello", "hey"); validationField(err) != "original" {
		t.Errorf("duplicate original: %v", err)
	}

	toggled, err := env.settings.ToggleReplacement(ctx, user.ID, rule.ID)
	if err != nil {
		t.Fatal(err)
	}
	if toggled.IsActive {
		t.Error("toggle did not deactivate")
	}

	other := env.register(t, "b@example.com")
	if err := env.settings.DeleteReplacement(ctx, other.ID, rule.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("cross-user delete: %v", err)
	}
	if err := env.settings.DeleteReplacement(ctx, user.ID, rule.ID); err != nil {
		t.Fatal(err)
	}
	rules, err := env.settings.Replacements(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 0 {
		t.Errorf("rules left: %v", rules)
	}
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.register(t, "a@example.com")

	if _, err := env.settings.PrimaryAccount(ctx, user.ID); !errors.Is(err, ErrNoAccount) {
		t.Errorf("primary without accounts: %v", err)
	}
	if _, err := env.settings.LinkAccount(ctx, user.ID, &telegram.Authorized{Phone: "+1555"}); err == nil {
		t.Error("expected error for empty session")
	}

	first := env.link(t, user.ID, "+15550000001")
	second := env.link(t, user.ID, "+15550000002")
	if !first.IsPrimary || second.IsPrimary {
		t.Fatalf("first linked account should be primary: %+v %+v", first, second)
	}

	if err := env.settings.SwitchPrimary(ctx, user.ID, second.ID); err != nil {
		t.Fatal(err)
	}
	primary, err := env.settings.PrimaryAccount(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if primary.ID != second.ID {
		t.Errorf("primary = %d, want %d", primary.ID, second.ID)
	}

	if err := env.settings.Unlink(ctx, user.ID, second.ID); err != nil {
		t.Fatal(err)
	}
	primary, err = env.settings.PrimaryAccount(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if primary.ID != first.ID {
		t.Errorf("remaining account not promoted: %+v", primary)
	}

	accounts, err := env.settings.Accounts(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 1 {
		t.Errorf("accounts = %d", len(accounts))
	}
	if len(env.resolver.forgotten) != 3 {
		t.Errorf("cache evictions = %v", env.resolver.forgotten)
	}
}

func TestRecentLogsAndDashboard(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.register(t, "a@example.com")
	cfg, err := env.settings.SaveConfig(ctx, user.ID, "-1001111111111", "-1002222222222")
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 60; i++ {
		err := env.stores.Logs.Create(ctx, &model.ForwardingLog{
			UserID:               user.ID,
			ConfigID:             cfg.ID,
			SourceChannelID:      cfg.SourceChannelID,
			SourceMessageID:      i,
			DestinationChannelID: cfg.DestinationChannelID,
			DestinationMessageID: 1000 + i,
			Action:               model.ActionForward,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	logs, err := env.settings.RecentLogs(ctx, user.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != DefaultLogLimit {
		t.Errorf("default limit returned %d", len(logs))
	}
	if logs[0].SourceMessageID != 60 {
		t.Errorf("newest first expected, got %d", logs[0].SourceMessageID)
	}

	d, err := env.settings.Dashboard(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if d.LogCount != 60 || d.Primary != nil || d.Config.ID != cfg.ID {
		t.Errorf("unexpected dashboard: count=%d primary=%v", d.LogCount, d.Primary)
	}
}

func TestClampLogLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{-1, DefaultLogLimit},
		{0, DefaultLogLimit},
		{10, 10},
		{MaxLogLimit, MaxLogLimit},
		{MaxLogLimit + 1, MaxLogLimit},
	}
	for _, tt := range tests {
		if got := ClampLogLimit(tt.in); got != tt.want {
			t.Errorf("ClampLogLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
