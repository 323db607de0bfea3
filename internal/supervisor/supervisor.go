// Package supervisor keeps one forwarding worker running per user with an
// active configuration.
package supervisor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/parvesh-spec/messageforwarder/internal/repository"
)

// Runner is a long-running worker for one route.
type Runner interface {
	Run(ctx context.Context) error
	Update(route repository.ActiveRoute)
}

type Factory func(route repository.ActiveRoute) Runner

type RouteSource interface {
	ListActive(ctx context.Context) ([]repository.ActiveRoute, error)
}

type LogPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Options struct {
	ReconcileInterval time.Duration
	LogRetention      time.Duration
	// PruneAt is the daily HH:MM at which old logs are removed.
	PruneAt string
}

type running struct {
	accountID uint
	runner    Runner
	cancel    context.CancelFunc
	done      chan struct{}
}

type Supervisor struct {
	routes  RouteSource
	pruner  LogPruner
	factory Factory
	opts    Options
	log     *zap.Logger

	trigger chan struct{}

	mu      sync.Mutex
	base    context.Context
	workers map[uint]*running
}

func New(routes RouteSource, pruner LogPruner, factory Factory, opts Options, log *zap.Logger) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = 10 * time.Second
	}
	if opts.PruneAt == "" {
		opts.PruneAt = "03:00"
	}
	return &Supervisor{
		routes:  routes,
		pruner:  pruner,
		factory: factory,
		opts:    opts,
		log:     log.Named("supervisor"),
		trigger: make(chan struct{}, 1),
		workers: map[uint]*running{},
	}
}

// Trigger asks for a reconcile as soon as possible without blocking.
func (s *Supervisor) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run reconciles on start, on every Trigger and on the configured interval
// until ctx is done, then stops all workers.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	scheduler := NewScheduler(nil)
	if _, err := scheduler.ScheduleInterval(s.opts.ReconcileInterval, s.Trigger); err != nil {
		return errors.Wrap(err, "schedule reconcile")
	}
	if s.pruner != nil && s.opts.LogRetention > 0 {
		if _, err := scheduler.ScheduleDaily(s.opts.PruneAt, func() { s.prune(ctx) }); err != nil {
			return errors.Wrap(err, "schedule prune")
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	s.log.Info("Supervisor started", zap.Duration("reconcile_interval", s.opts.ReconcileInterval))
	s.Trigger()

	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			s.log.Info("Supervisor stopped")
			return nil
		case <-s.trigger:
			if err := s.Reconcile(ctx); err != nil {
				s.log.Error("Reconcile failed", zap.Error(err))
			}
		}
	}
}

// Reconcile starts, updates and stops workers to match the active routes.
// A worker whose primary account changed is restarted.
func (s *Supervisor) Reconcile(ctx context.Context) error {
	routes, err := s.routes.ListActive(ctx)
	if err != nil {
		return errors.Wrap(err, "list active routes")
	}

	desired := make(map[uint]repository.ActiveRoute, len(routes))
	for _, r := range routes {
		desired[r.Config.UserID] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for userID, w := range s.workers {
		route, ok := desired[userID]
		if ok && route.Account.ID == w.accountID {
			continue
		}
		s.log.Info("Stopping worker", zap.Uint("user_id", userID))
		s.stopLocked(userID, w)
	}

	for userID, route := range desired {
		if w, ok := s.workers[userID]; ok {
			w.runner.Update(route)
			continue
		}
		s.startLocked(route)
	}
	return nil
}

// Running returns the user ids with a live worker.
func (s *Supervisor) Running() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Supervisor) startLocked(route repository.ActiveRoute) {
	base := s.base
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)

	w := &running{
		accountID: route.Account.ID,
		runner:    s.factory(route),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.workers[route.Config.UserID] = w

	log := s.log.With(zap.Uint("user_id", route.Config.UserID), zap.Uint("account_id", route.Account.ID))
	log.Info("Starting worker")

	go func() {
		defer close(w.done)
		if err := w.runner.Run(ctx); err != nil {
			log.Error("Worker exited", zap.Error(err))
		}
	}()
}

func (s *Supervisor) stopLocked(userID uint, w *running) {
	w.cancel()
	<-w.done
	delete(s.workers, userID)
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, w := range s.workers {
		s.stopLocked(userID, w)
	}
}

func (s *Supervisor) prune(ctx context.Context) {
	cutoff := time.Now().Add(-s.opts.LogRetention)
	n, err := s.pruner.PruneBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("Failed to prune forwarding logs", zap.Error(err))
		return
	}
	s.log.Info("Pruned forwarding logs", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
}
