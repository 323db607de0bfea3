package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parvesh-spec/messageforwarder/internal/channelid"
	"github.com/parvesh-spec/messageforwarder/internal/repository"
	"github.com/parvesh-spec/messageforwarder/internal/telegram"
)

func init() {
	var (
		accountID uint
		userID    uint
		resolve   string
	)

	channelsCmd := &cobra.Command{
		Use:   "channels",
		Short: "List the channels visible to a linked Telegram account",
		Long: `List broadcast channels and supergroups from the dialogs of a linked account, with ids
in the -100... form accepted by the dashboard. Pass --resolve to look up a single @username or link.
Example: forwarder channels --user-id=1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChannels(accountID, userID, resolve)
		},
	}

	channelsCmd.Flags().UintVar(&accountID, "account-id", 0, "Linked account id")
	channelsCmd.Flags().UintVar(&userID, "user-id", 0, "Use the primary account of this user")
	channelsCmd.Flags().StringVar(&resolve, "resolve", "", "Resolve one channel id, @username or t.me link")

	rootCmd.AddCommand(channelsCmd)
}

func runChannels(accountID, userID uint, resolve string) error {
	if accountID == 0 && userID == 0 {
		return fmt.Errorf("either --account-id or --user-id is required")
	}

	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	accounts := repository.NewAccountRepository(a.db)
	if accountID == 0 {
		primary, err := accounts.Primary(ctx, userID)
		if err != nil {
			return fmt.Errorf("error finding primary account of user %d: %w", userID, err)
		}
		accountID = primary.ID
	}

	gateway := telegram.NewGateway(a.telegramOptions(), accounts, a.cfg.Telegram.RequestTimeout)

	if resolve != "" {
		return printResolved(ctx, gateway, accountID, resolve)
	}

	channels, err := gateway.Channels(ctx, accountID)
	if err != nil {
		return fmt.Errorf("error listing channels: %w", err)
	}
	if len(channels) == 0 {
		fmt.Println("No channels found")
		return nil
	}

	fmt.Printf("Channels of account %d:\n", accountID)
	fmt.Println(strings.Repeat("=", 40))
	for _, ch := range channels {
		fmt.Println(describeChannel(ch))
	}
	return nil
}

func printResolved(ctx context.Context, gateway *telegram.Gateway, accountID uint, ref string) error {
	parsed, err := channelid.ParseRef(ref)
	if err != nil {
		return err
	}
	ch, err := gateway.Resolve(ctx, accountID, parsed)
	if err != nil {
		return fmt.Errorf("error resolving %s: %w", parsed, err)
	}
	fmt.Println(describeChannel(ch))
	return nil
}

func describeChannel(ch telegram.Channel) string {
	kind := "supergroup"
	if ch.Broadcast {
		kind = "channel"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s | %s | %s", channelid.Format(ch.ID), kind, ch.Title)
	if ch.Username != "" {
		fmt.Fprintf(&b, " | @%s", ch.Username)
	}
	if ch.Protected {
		b.WriteString(" | protected")
	}
	return b.String()
}
