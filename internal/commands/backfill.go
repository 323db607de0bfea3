package commands

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/parvesh-spec/messageforwarder/internal/repository"
)

func init() {
	var (
		userID uint
		limit  int
	)

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Relay the latest messages of a user's source channel",
		Long: `Copy or forward up to --limit of the most recent source channel messages to the
destination, oldest first, through the same pipeline as live messages. Messages already relayed are skipped.
Example: forwarder backfill --user-id=1 --limit=200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(userID, limit)
		},
	}

	backfillCmd.Flags().UintVar(&userID, "user-id", 0, "User whose route to backfill (required)")
	backfillCmd.Flags().IntVar(&limit, "limit", 100, "Number of recent messages to relay")
	backfillCmd.MarkFlagRequired("user-id")

	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(userID uint, limit int) error {
	if limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	route, err := repository.NewRouteRepository(a.db).Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("error loading route of user %d: %w", userID, err)
	}

	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = progressbar.Default(int64(total), "relaying")
		}
		_ = bar.Set(done)
	}

	res, err := a.newWorker(*route).Backfill(ctx, limit, progress)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return fmt.Errorf("error during backfill: %w", err)
	}

	fmt.Printf("\nFetched %d messages: %d relayed, %d already relayed, %d failed\n",
		res.Fetched, res.Relayed, res.Skipped, res.Failed)
	return nil
}
