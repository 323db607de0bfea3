package telegram

import (
	"time"

	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/parvesh-spec/messageforwarder/internal/config"
	"github.com/parvesh-spec/messageforwarder/internal/logging"
)

// Options carries what every client of this process shares.
type Options struct {
	APIID            int
	APIHash          string
	Logger           *zap.Logger
	FloodWaitRetries uint
	RateLimit        time.Duration
	RateBurst        int
}

func OptionsFromConfig(cfg config.TelegramConfig, log *zap.Logger) Options {
	return Options{
		APIID:            cfg.APIID,
		APIHash:          cfg.APIHash,
		Logger:           log,
		FloodWaitRetries: cfg.FloodWaitRetries,
		RateLimit:        cfg.RateLimit,
		RateBurst:        cfg.RateBurst,
	}
}

// NewClient builds a gotd client that sleeps through FLOOD_WAIT errors and
// paces outgoing requests. A nil handler disables update processing.
func NewClient(opts Options, storage telegram.SessionStorage, handler telegram.UpdateHandler, middlewares ...telegram.Middleware) *telegram.Client {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	mws := []telegram.Middleware{
		floodwait.NewSimpleWaiter().WithMaxRetries(opts.FloodWaitRetries),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		mws = append(mws, ratelimit.New(rate.Every(opts.RateLimit), burst))
	}
	mws = append(mws, middlewares...)

	return telegram.NewClient(opts.APIID, opts.APIHash, telegram.Options{
		Logger:         logging.MTProto(log),
		SessionStorage: storage,
		UpdateHandler:  handler,
		NoUpdates:      handler == nil,
		Middlewares:    mws,
	})
}
