package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/parvesh-spec/messageforwarder/internal/channelid"
)

var ErrNotAuthorized = errors.New("telegram session is not authorized")

const channelCacheTTL = time.Minute

type channelCacheEntry struct {
	channels []Channel
	fetched  time.Time
}

// Gateway runs short-lived Telegram calls on behalf of the dashboard, each
// bounded by a fixed timeout.
type Gateway struct {
	opts     Options
	sessions SessionStore
	timeout  time.Duration
	log      *zap.Logger

	mu    sync.Mutex
	cache map[uint]channelCacheEntry
}

func NewGateway(opts Options, sessions SessionStore, timeout time.Duration) *Gateway {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Gateway{
		opts:     opts,
		sessions: sessions,
		timeout:  timeout,
		log:      log.Named("gateway"),
		cache:    map[uint]channelCacheEntry{},
	}
}

// Channels lists the channels of accountID, served from a short cache.
func (g *Gateway) Channels(ctx context.Context, accountID uint) ([]Channel, error) {
	g.mu.Lock()
	entry, ok := g.cache[accountID]
	g.mu.Unlock()
	if ok && time.Since(entry.fetched) < channelCacheTTL {
		return entry.channels, nil
	}

	var channels []Channel
	err := g.withClient(ctx, accountID, func(ctx context.Context, c *Conn) error {
		var err error
		channels, err = ListChannels(ctx, c.API)
		return err
	})
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.cache[accountID] = channelCacheEntry{channels: channels, fetched: time.Now()}
	g.mu.Unlock()
	return channels, nil
}

// Resolve finds the channel ref points to among accountID's dialogs, or by
// public username.
func (g *Gateway) Resolve(ctx context.Context, accountID uint, ref channelid.Ref) (Channel, error) {
	if ref.Username == "" {
		channels, err := g.Channels(ctx, accountID)
		if err != nil {
			return Channel{}, err
		}
		found, err := pickChannels(channels, []int64{ref.ID})
		if err != nil {
			return Channel{}, err
		}
		return found[ref.ID], nil
	}

	var ch Channel
	err := g.withClient(ctx, accountID, func(ctx context.Context, c *Conn) error {
		var err error
		ch, err = ResolveUsername(ctx, c.API, ref.Username)
		return err
	})
	return ch, err
}

func (g *Gateway) Forget(accountID uint) {
	g.mu.Lock()
	delete(g.cache, accountID)
	g.mu.Unlock()
}

func (g *Gateway) withClient(ctx context.Context, accountID uint, fn func(ctx context.Context, c *Conn) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return Run(ctx, g.opts, NewAccountStorage(g.sessions, accountID), nil, fn)
}
