package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/parvesh-spec/messageforwarder/internal/repository"
	"github.com/parvesh-spec/messageforwarder/internal/service"
)

func init() {
	var (
		email    string
		password string
	)

	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage dashboard users",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a dashboard user",
		Long: `Create a dashboard user. The password is prompted for when --password is not given.
Example: forwarder user create --email=admin@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(email, password)
		},
	}
	createCmd.Flags().StringVarP(&email, "email", "e", "", "Email address (required)")
	createCmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted when empty)")
	createCmd.MarkFlagRequired("email")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List dashboard users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList()
		},
	}

	userCmd.AddCommand(createCmd, listCmd)
	rootCmd.AddCommand(userCmd)
}

func promptPassword(label string) (string, error) {
	fmt.Print(label)
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		var s string
		_, err := fmt.Scanln(&s)
		return s, err
	}
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	return string(b), err
}

func runUserCreate(email, password string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	confirm := password
	if password == "" {
		if password, err = promptPassword("Password: "); err != nil {
			return fmt.Errorf("error reading password: %w", err)
		}
		if confirm, err = promptPassword("Confirm password: "); err != nil {
			return fmt.Errorf("error reading password: %w", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	user, err := service.NewAuthService(repository.NewUserRepository(a.db)).Register(ctx, email, password, confirm)
	if err != nil {
		return fmt.Errorf("error creating user: %w", err)
	}
	fmt.Printf("User %s created with id %d\n", user.Email, user.ID)
	return nil
}

func runUserList() error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	users, err := repository.NewUserRepository(a.db).List(ctx)
	if err != nil {
		return fmt.Errorf("error listing users: %w", err)
	}
	if len(users) == 0 {
		fmt.Println("No users registered")
		return nil
	}

	configs := repository.NewConfigRepository(a.db)
	accounts := repository.NewAccountRepository(a.db)

	fmt.Println("Users:")
	fmt.Println(strings.Repeat("=", 40))
	for _, u := range users {
		status := "not configured"
		if cfg, err := configs.Get(ctx, u.ID); err == nil {
			status = "stopped"
			if cfg.IsActive {
				status = "running"
			}
		}
		linked, err := accounts.ListByUser(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("error listing accounts: %w", err)
		}
		lastLogin := "never"
		if u.LastLoginAt != nil {
			lastLogin = u.LastLoginAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("ID: %d | Email: %s | Accounts: %d | Forwarding: %s | Last login: %s\n",
			u.ID, u.Email, len(linked), status, lastLogin)
	}
	return nil
}
