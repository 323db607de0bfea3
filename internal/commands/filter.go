package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/parvesh-spec/messageforwarder/internal/repository"
	"github.com/parvesh-spec/messageforwarder/internal/service"
)

var (
	replaceUserID      uint
	replaceOriginal    string
	replaceReplacement string
)

func init() {
	replaceCmd := &cobra.Command{
		Use:   "replace",
		Short: "Manage text replacements",
		Long:  `Manage the text replacements applied to a user's relayed messages`,
	}
	replaceCmd.PersistentFlags().UintVarP(&replaceUserID, "user-id", "u", 0, "User owning the replacements (required)")
	replaceCmd.MarkPersistentFlagRequired("user-id")

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a text replacement",
		Long: `Add a text replacement. Longer originals win over shorter ones that overlap them,
and replaced text is never replaced again.`,
		RunE: runAddReplacement,
	}
	addCmd.Flags().StringVarP(&replaceOriginal, "original", "o", "", "Text to replace (required)")
	addCmd.Flags().StringVarP(&replaceReplacement, "replacement", "r", "", "Replacement text (may be empty)")
	addCmd.MarkFlagRequired("original")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List text replacements",
		RunE:  runListReplacements,
	}

	toggleCmd := &cobra.Command{
		Use:   "toggle [replacement-id]",
		Short: "Enable or disable a text replacement",
		Args:  cobra.ExactArgs(1),
		RunE:  runToggleReplacement,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [replacement-id]",
		Short: "Delete a text replacement",
		Args:  cobra.ExactArgs(1),
		RunE:  runDeleteReplacement,
	}

	replaceCmd.AddCommand(addCmd, listCmd, toggleCmd, deleteCmd)
	rootCmd.AddCommand(replaceCmd)
}

func newSettings(a *app) *service.SettingsService {
	return service.NewSettingsService(service.Stores{
		Configs:      repository.NewConfigRepository(a.db),
		Accounts:     repository.NewAccountRepository(a.db),
		Replacements: repository.NewReplacementRepository(a.db),
		Logs:         repository.NewLogRepository(a.db),
	}, nil, nil, a.log)
}

func runAddReplacement(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	rule, err := newSettings(a).AddReplacement(cmd.Context(), replaceUserID, replaceOriginal, replaceReplacement)
	if err != nil {
		return fmt.Errorf("error adding replacement: %w", err)
	}

	fmt.Printf("Replacement %d added: %q -> %q\n", rule.ID, rule.Original, rule.Replacement)
	return nil
}

func runListReplacements(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	rules, err := newSettings(a).Replacements(cmd.Context(), replaceUserID)
	if err != nil {
		return fmt.Errorf("error getting replacements: %w", err)
	}

	if len(rules) == 0 {
		fmt.Println("No replacements configured")
		return nil
	}

	fmt.Println("Text Replacements:")
	fmt.Println("==================")
	for _, r := range rules {
		status := "disabled"
		if r.IsActive {
			status = "enabled"
		}
		fmt.Printf("ID: %d | Original: %q | Replacement: %q | Status: %s\n",
			r.ID, r.Original, r.Replacement, status)
	}

	return nil
}

func runToggleReplacement(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	rule, err := newSettings(a).ToggleReplacement(cmd.Context(), replaceUserID, id)
	if err != nil {
		return fmt.Errorf("error toggling replacement: %w", err)
	}

	status := "disabled"
	if rule.IsActive {
		status = "enabled"
	}
	fmt.Printf("Replacement %d %s\n", rule.ID, status)
	return nil
}

func runDeleteReplacement(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := newSettings(a).DeleteReplacement(cmd.Context(), replaceUserID, id); err != nil {
		return fmt.Errorf("error deleting replacement: %w", err)
	}

	fmt.Printf("Replacement %d deleted\n", id)
	return nil
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid replacement ID: %s", s)
	}
	return uint(id), nil
}
