package forwarder

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-faster/errors"
	tdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/updates"
	updhook "github.com/gotd/td/telegram/updates/hook"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"github.com/parvesh-spec/messageforwarder/internal/replace"
	"github.com/parvesh-spec/messageforwarder/internal/repository"
	"github.com/parvesh-spec/messageforwarder/internal/telegram"
)

var errReconnect = errors.New("route changed, reconnecting")

const maxRetryDelay = 5 * time.Minute

// Config holds the settings shared by every worker.
type Config struct {
	Telegram   telegram.Options
	MediaDir   string
	RetryDelay time.Duration
}

// Stores are the persistence dependencies of a worker.
type Stores struct {
	Sessions     telegram.SessionStore
	Logs         LogStore
	Replacements ReplacementStore
}

// Worker keeps one account connected and relays its route until stopped.
type Worker struct {
	cfg     Config
	stores  Stores
	log     *zap.Logger
	handler *Handler

	mu        sync.Mutex
	route     repository.ActiveRoute
	reconnect context.CancelCauseFunc
}

func NewWorker(cfg Config, stores Stores, route repository.ActiveRoute, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	log = log.Named("worker").With(
		zap.Uint("user_id", route.Config.UserID),
		zap.Uint("account_id", route.Account.ID),
	)

	h := NewHandler(stores.Logs, stores.Replacements, log)
	h.SetReplacer(replace.New(route.Replacements))

	return &Worker{
		cfg:     cfg,
		stores:  stores,
		log:     log,
		handler: h,
		route:   route,
	}
}

// Run relays updates until ctx is done, reconnecting with exponential
// backoff after failures.
func (w *Worker) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.cfg.RetryDelay
	b.MaxInterval = maxRetryDelay
	b.MaxElapsedTime = 0

	for {
		started := time.Now()
		err := w.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errReconnect) {
			w.log.Info("Route changed, reconnecting")
			b.Reset()
			continue
		}
		if time.Since(started) > maxRetryDelay {
			b.Reset()
		}

		delay := b.NextBackOff()
		w.log.Warn("Forwarding session ended", zap.Error(err), zap.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// Update swaps in new settings. Channel changes force a reconnect so the new
// peers are resolved; rule and flag changes apply immediately.
func (w *Worker) Update(route repository.ActiveRoute) {
	w.mu.Lock()
	old := w.route
	w.route = route
	reconnect := w.reconnect
	w.mu.Unlock()

	w.handler.SetReplacer(replace.New(route.Replacements))
	w.handler.SetReplacementsEnabled(route.Config.ReplacementsEnabled)

	moved := old.Config.SourceChannelID != route.Config.SourceChannelID ||
		old.Config.DestinationChannelID != route.Config.DestinationChannelID
	if moved && reconnect != nil {
		reconnect(errReconnect)
	}
}

func (w *Worker) currentRoute() repository.ActiveRoute {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.route
}

func (w *Worker) session(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	w.mu.Lock()
	w.reconnect = cancel
	w.mu.Unlock()

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewChannelMessage(func(ctx context.Context, _ tg.Entities, u *tg.UpdateNewChannelMessage) error {
		if msg, ok := u.Message.(*tg.Message); ok {
			if err := w.handler.OnNewMessage(ctx, msg); err != nil {
				w.log.Error("Failed to relay message", zap.Int("msg_id", msg.ID), zap.Error(err))
			}
		}
		return nil
	})
	dispatcher.OnEditChannelMessage(func(ctx context.Context, _ tg.Entities, u *tg.UpdateEditChannelMessage) error {
		if msg, ok := u.Message.(*tg.Message); ok {
			if err := w.handler.OnEditMessage(ctx, msg); err != nil {
				w.log.Error("Failed to propagate edit", zap.Int("msg_id", msg.ID), zap.Error(err))
			}
		}
		return nil
	})
	dispatcher.OnNewMessage(func(ctx context.Context, _ tg.Entities, u *tg.UpdateNewMessage) error {
		if msg, ok := u.Message.(*tg.Message); ok {
			if err := w.handler.OnSelfMessage(ctx, msg); err != nil {
				w.log.Warn("Failed to answer command", zap.Error(err))
			}
		}
		return nil
	})

	gaps := updates.New(updates.Config{
		Handler: dispatcher,
		Logger:  w.log.Named("gaps"),
	})

	err := w.connect(ctx, gaps, func(ctx context.Context, c *telegram.Conn) error {
		w.log.Info("Forwarding started",
			zap.Int64("source", w.handler.Route().SourceID),
			zap.Int64("destination", w.handler.Route().DestinationID),
		)
		return gaps.Run(ctx, c.API, c.Self.ID, updates.AuthOptions{
			OnStart: func(ctx context.Context) {
				w.log.Debug("Update gap manager started")
			},
		})
	}, updhook.UpdateHook(gaps.Handle))

	if cause := context.Cause(ctx); errors.Is(cause, errReconnect) {
		return errReconnect
	}
	return err
}

// connect runs fn on an authorized connection with the handler bound to the
// route's resolved peers.
func (w *Worker) connect(ctx context.Context, upd tdtelegram.UpdateHandler, fn func(ctx context.Context, c *telegram.Conn) error, mws ...tdtelegram.Middleware) error {
	route := w.currentRoute()
	storage := telegram.NewAccountStorage(w.stores.Sessions, route.Account.ID)

	return telegram.Run(ctx, w.cfg.Telegram, storage, upd, func(ctx context.Context, c *telegram.Conn) error {
		peers, err := telegram.FindChannels(ctx, c.API, route.Config.SourceChannelID, route.Config.DestinationChannelID)
		if err != nil {
			return errors.Wrap(err, "resolve route channels")
		}
		src := peers[route.Config.SourceChannelID]
		dst := peers[route.Config.DestinationChannelID]

		w.handler.Bind(newAPITransport(c.API), newFileCopier(c.API, w.cfg.MediaDir), Route{
			ConfigID:            route.Config.ID,
			UserID:              route.Config.UserID,
			SourceID:            src.ID,
			SourceTitle:         src.Title,
			DestinationID:       dst.ID,
			DestinationTitle:    dst.Title,
			Source:              src.Peer,
			Destination:         dst.Peer,
			SourceProtected:     src.Protected,
			ReplacementsEnabled: route.Config.ReplacementsEnabled,
		}, c.Self.ID)

		return fn(ctx, c)
	}, mws...)
}
