package telegram

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"
)

var (
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrPasswordNeeded  = errors.New("two-factor password needed")
	ErrNoPendingLogin  = errors.New("no pending login, request a new code")
	ErrInvalidCode     = errors.New("invalid or expired code")
	ErrInvalidPassword = errors.New("invalid two-factor password")
	ErrSignUpRequired  = errors.New("phone number is not registered on Telegram")
)

const pendingLoginTTL = 10 * time.Minute

var phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// NormalizePhone strips formatting from a phone number and checks it is in
// E.164 form and starts with prefix, when one is set.
func NormalizePhone(phone, prefix string) (string, error) {
	phone = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))

	if !phonePattern.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	if prefix != "" && !strings.HasPrefix(phone, prefix) {
		return "", errors.Wrapf(ErrInvalidPhone, "number must start with %s", prefix)
	}
	return phone, nil
}

// Authorized describes a freshly signed-in account.
type Authorized struct {
	Session   string
	UserID    int64
	Username  string
	FirstName string
	LastName  string
	Phone     string
}

// CodeSent is the outcome of SendCode. Authorized is set when Telegram
// accepted the login without a code.
type CodeSent struct {
	Phone      string
	Via        string
	Authorized *Authorized
}

type authenticator interface {
	SendCode(ctx context.Context, phone string) (tg.AuthSentCodeClass, error)
	SignIn(ctx context.Context, phone, code, codeHash string) (*tg.AuthAuthorization, error)
	Password(ctx context.Context, password string) (*tg.AuthAuthorization, error)
}

type authRunner func(ctx context.Context, storage *session.StorageMemory, fn func(ctx context.Context, a authenticator) error) error

type gotdAuth struct {
	client *auth.Client
}

func (g gotdAuth) SendCode(ctx context.Context, phone string) (tg.AuthSentCodeClass, error) {
	return g.client.SendCode(ctx, phone, auth.SendCodeOptions{})
}

func (g gotdAuth) SignIn(ctx context.Context, phone, code, codeHash string) (*tg.AuthAuthorization, error) {
	return g.client.SignIn(ctx, phone, code, codeHash)
}

func (g gotdAuth) Password(ctx context.Context, password string) (*tg.AuthAuthorization, error) {
	return g.client.Password(ctx, password)
}

type pendingLogin struct {
	mu           sync.Mutex
	phone        string
	codeHash     string
	needPassword bool
	storage      *session.StorageMemory
	expires      time.Time
}

// LoginManager drives phone logins started from the dashboard. Each pending
// login keeps its own in-memory session so the auth key survives between the
// code request and its verification.
type LoginManager struct {
	log     *zap.Logger
	timeout time.Duration
	run     authRunner
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingLogin
}

func NewLoginManager(opts Options, timeout time.Duration) *LoginManager {
	m := newLoginManager(opts.Logger, timeout, nil)
	m.run = func(ctx context.Context, storage *session.StorageMemory, fn func(ctx context.Context, a authenticator) error) error {
		client := NewClient(opts, storage, nil)
		return client.Run(ctx, func(ctx context.Context) error {
			return fn(ctx, gotdAuth{client: client.Auth()})
		})
	}
	return m
}

func newLoginManager(log *zap.Logger, timeout time.Duration, run authRunner) *LoginManager {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &LoginManager{
		log:     log.Named("login"),
		timeout: timeout,
		run:     run,
		now:     time.Now,
		pending: map[string]*pendingLogin{},
	}
}

// SendCode requests a login code for phone and remembers the pending login
// under key, replacing any previous one.
func (m *LoginManager) SendCode(ctx context.Context, key, phone string) (*CodeSent, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	p := &pendingLogin{
		phone:   phone,
		storage: &session.StorageMemory{},
		expires: m.now().Add(pendingLoginTTL),
	}

	var sent tg.AuthSentCodeClass
	err := m.run(ctx, p.storage, func(ctx context.Context, a authenticator) error {
		var err error
		sent, err = a.SendCode(ctx, phone)
		return err
	})
	if err != nil {
		if tgerr.Is(err, "PHONE_NUMBER_INVALID", "PHONE_NUMBER_BANNED") {
			return nil, errors.Wrap(ErrInvalidPhone, err.Error())
		}
		return nil, errors.Wrap(err, "send code")
	}

	switch s := sent.(type) {
	case *tg.AuthSentCode:
		p.codeHash = s.PhoneCodeHash
		m.store(key, p)
		m.log.Info("Login code sent", zap.String("phone", maskPhone(phone)))
		return &CodeSent{Phone: phone, Via: codeVia(s.Type)}, nil
	case *tg.AuthSentCodeSuccess:
		authz, ok := s.Authorization.(*tg.AuthAuthorization)
		if !ok {
			return nil, errors.Errorf("unexpected authorization %T", s.Authorization)
		}
		authorized, err := m.finish(ctx, p, authz)
		if err != nil {
			return nil, err
		}
		return &CodeSent{Phone: phone, Authorized: authorized}, nil
	default:
		return nil, errors.Errorf("unexpected sent code %T", sent)
	}
}

// Verify completes the pending login under key. When the account has a
// two-factor password and none is given it returns ErrPasswordNeeded and the
// login stays pending for a second call with the password.
func (m *LoginManager) Verify(ctx context.Context, key, code, password string) (*Authorized, error) {
	p := m.lookup(key)
	if p == nil {
		return nil, ErrNoPendingLogin
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var authz *tg.AuthAuthorization
	err := m.run(ctx, p.storage, func(ctx context.Context, a authenticator) error {
		if !p.needPassword {
			res, err := a.SignIn(ctx, p.phone, strings.TrimSpace(code), p.codeHash)
			switch {
			case err == nil:
				authz = res
				return nil
			case errors.Is(err, auth.ErrPasswordAuthNeeded):
				p.needPassword = true
			default:
				return classifySignInError(err)
			}
		}

		if password == "" {
			return ErrPasswordNeeded
		}
		res, err := a.Password(ctx, password)
		if err != nil {
			if errors.Is(err, auth.ErrPasswordInvalid) || tgerr.Is(err, "PASSWORD_HASH_INVALID") {
				return ErrInvalidPassword
			}
			return errors.Wrap(err, "check password")
		}
		authz = res
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrSignUpRequired) {
			m.remove(key)
		}
		return nil, err
	}

	authorized, err := m.finish(ctx, p, authz)
	if err != nil {
		return nil, err
	}
	m.remove(key)
	return authorized, nil
}

// Pending reports whether key has a login waiting for a code or password.
func (m *LoginManager) Pending(key string) (phone string, needPassword bool, ok bool) {
	p := m.lookup(key)
	if p == nil {
		return "", false, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phone, p.needPassword, true
}

func (m *LoginManager) Cancel(key string) {
	m.remove(key)
}

func (m *LoginManager) finish(ctx context.Context, p *pendingLogin, authz *tg.AuthAuthorization) (*Authorized, error) {
	data, err := p.storage.LoadSession(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read session")
	}

	out := &Authorized{
		Session: EncodeSession(data),
		Phone:   p.phone,
	}
	if authz != nil {
		if u, ok := authz.User.AsNotEmpty(); ok {
			out.UserID = u.ID
			out.Username = u.Username
			out.FirstName = u.FirstName
			out.LastName = u.LastName
		}
	}
	m.log.Info("Telegram account authorized",
		zap.String("phone", maskPhone(p.phone)),
		zap.Int64("telegram_user_id", out.UserID),
	)
	return out, nil
}

func (m *LoginManager) store(key string, p *pendingLogin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	m.pending[key] = p
}

func (m *LoginManager) lookup(key string) *pendingLogin {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	return m.pending[key]
}

func (m *LoginManager) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, key)
}

func (m *LoginManager) sweepLocked() {
	now := m.now()
	for k, p := range m.pending {
		if now.After(p.expires) {
			delete(m.pending, k)
		}
	}
}

func classifySignInError(err error) error {
	var signUp *auth.SignUpRequired
	switch {
	case errors.As(err, &signUp):
		return ErrSignUpRequired
	case tgerr.Is(err, "PHONE_CODE_INVALID", "PHONE_CODE_EXPIRED", "PHONE_CODE_EMPTY"):
		return ErrInvalidCode
	default:
		return errors.Wrap(err, "sign in")
	}
}

func codeVia(t tg.AuthSentCodeTypeClass) string {
	switch t.(type) {
	case *tg.AuthSentCodeTypeApp:
		return "telegram"
	case *tg.AuthSentCodeTypeSMS:
		return "sms"
	case *tg.AuthSentCodeTypeCall, *tg.AuthSentCodeTypeFlashCall, *tg.AuthSentCodeTypeMissedCall:
		return "call"
	default:
		return "unknown"
	}
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
