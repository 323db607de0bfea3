// Package web serves the dashboard and its JSON API.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/parvesh-spec/messageforwarder/internal/channelid"
	"github.com/parvesh-spec/messageforwarder/internal/service"
	"github.com/parvesh-spec/messageforwarder/internal/telegram"
)

//go:embed templates/*.html
var templateFS embed.FS

const shutdownTimeout = 10 * time.Second

// Logins drives the phone login of a Telegram account.
type Logins interface {
	SendCode(ctx context.Context, key, phone string) (*telegram.CodeSent, error)
	Verify(ctx context.Context, key, code, password string) (*telegram.Authorized, error)
	Cancel(key string)
}

type ChannelLister interface {
	Channels(ctx context.Context, accountID uint) ([]telegram.Channel, error)
}

type Options struct {
	SessionTTL    time.Duration
	SecureCookies bool
	// PhonePrefix, when set, restricts linkable numbers.
	PhonePrefix string
}

type Server struct {
	auth      *service.AuthService
	settings  *service.SettingsService
	logins    Logins
	channels  ChannelLister
	sessions  *sessionStore
	templates *template.Template
	opts      Options
	log       *zap.Logger
}

func NewServer(auth *service.AuthService, settings *service.SettingsService, logins Logins, channels ChannelLister, opts Options, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"channel": formatChannel,
		"when":    formatTime,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Server{
		auth:      auth,
		settings:  settings,
		logins:    logins,
		channels:  channels,
		sessions:  newSessionStore(opts.SessionTTL),
		templates: tmpl,
		opts:      opts,
		log:       log.Named("web"),
	}, nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.loadSession)

	r.Get("/healthz", s.handleHealth)
	r.Get("/", s.handleIndex)
	r.Get("/register", s.handleRegisterPage)
	r.Post("/register", s.handleRegister)
	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/dashboard", s.handleDashboard)
		r.Post("/send-otp", s.handleSendOTP)
		r.Post("/verify-otp", s.handleVerifyOTP)
		r.Post("/bot/toggle", s.handleBotToggle)
		r.Post("/replace/toggle", s.handleReplaceToggle)

		r.Route("/api", func(r chi.Router) {
			r.Get("/channels", s.handleChannels)
			r.Post("/config", s.handleSaveConfig)

			r.Get("/replacements", s.handleListReplacements)
			r.Post("/replacements", s.handleCreateReplacement)
			r.Post("/replacements/{id}/toggle", s.handleToggleReplacement)
			r.Delete("/replacements/{id}", s.handleDeleteReplacement)

			r.Get("/accounts", s.handleListAccounts)
			r.Post("/accounts/{id}/primary", s.handleSwitchPrimary)
			r.Delete("/accounts/{id}", s.handleUnlinkAccount)

			r.Get("/logs", s.handleLogs)
		})
	})

	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.log.Error("Failed to render template", zap.String("template", name), zap.Error(err))
	}
}

func formatChannel(id int64) string {
	if id == 0 {
		return ""
	}
	return channelid.Format(id)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
