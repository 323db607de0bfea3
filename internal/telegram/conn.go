package telegram

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
)

// Conn is an authorized, running client.
type Conn struct {
	Client *telegram.Client
	API    *tg.Client
	Self   *tg.User
}

// Run connects with the stored session, checks that it is authorized and
// calls fn while the connection is up.
func Run(ctx context.Context, opts Options, storage telegram.SessionStorage, handler telegram.UpdateHandler, fn func(ctx context.Context, c *Conn) error, middlewares ...telegram.Middleware) error {
	client := NewClient(opts, storage, handler, middlewares...)
	return client.Run(ctx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return errors.Wrap(err, "auth status")
		}
		if !status.Authorized {
			return ErrNotAuthorized
		}

		self, err := client.Self(ctx)
		if err != nil {
			return errors.Wrap(err, "get self")
		}

		return fn(ctx, &Conn{Client: client, API: client.API(), Self: self})
	})
}
