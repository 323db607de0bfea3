package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/parvesh-spec/messageforwarder/internal/repository"
	"github.com/parvesh-spec/messageforwarder/internal/service"
	"github.com/parvesh-spec/messageforwarder/internal/telegram"
	"github.com/parvesh-spec/messageforwarder/internal/web"
)

func init() {
	var (
		listen      string
		withWorkers bool
	)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web dashboard and the forwarding workers",
		Long: `Run the web dashboard together with the supervisor that keeps one forwarding worker
per active user. Use --workers=false to run the dashboard alone next to a separate "worker" process.
Example: forwarder serve --listen=:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(listen, withWorkers)
		},
	}

	serveCmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides http.listen)")
	serveCmd.Flags().BoolVar(&withWorkers, "workers", true, "Run forwarding workers in this process")

	rootCmd.AddCommand(serveCmd)
}

func runServe(listen string, withWorkers bool) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if listen == "" {
		listen = a.cfg.HTTP.Listen
	}

	ctx, cancel := signalContext()
	defer cancel()

	opts := a.telegramOptions()
	accounts := repository.NewAccountRepository(a.db)
	gateway := telegram.NewGateway(opts, accounts, a.cfg.Telegram.RequestTimeout)
	logins := telegram.NewLoginManager(opts, a.cfg.Telegram.RequestTimeout)

	var notifier service.Notifier
	g, gctx := errgroup.WithContext(ctx)

	if withWorkers {
		sup := a.newSupervisor()
		notifier = sup
		g.Go(func() error { return sup.Run(gctx) })
	}

	settings := service.NewSettingsService(service.Stores{
		Configs:      repository.NewConfigRepository(a.db),
		Accounts:     accounts,
		Replacements: repository.NewReplacementRepository(a.db),
		Logs:         repository.NewLogRepository(a.db),
	}, gateway, notifier, a.log)
	auth := service.NewAuthService(repository.NewUserRepository(a.db))

	srv, err := web.NewServer(auth, settings, logins, gateway, web.Options{
		SessionTTL:    a.cfg.HTTP.SessionTTL,
		SecureCookies: a.cfg.HTTP.SecureCookies,
		PhonePrefix:   a.cfg.Telegram.PhonePrefix,
	}, a.log)
	if err != nil {
		return fmt.Errorf("error creating web server: %w", err)
	}

	fmt.Printf("Starting forwarder dashboard on %s (workers: %v)\n", listen, withWorkers)
	g.Go(func() error {
		err := srv.ListenAndServe(gctx, listen)
		cancel()
		return err
	})

	return g.Wait()
}
