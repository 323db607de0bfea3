package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parvesh-spec/messageforwarder/internal/config"
)

func init() {
	var force bool

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default settings",
		Long: `Write the default configuration to --config or ~/.config/forwarder/config.yaml.
Secrets such as API_HASH can stay in the environment or a .env file.
Example: forwarder config init --config=./config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(force bool) error {
	path := configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}

	if err := config.Save(config.Default(), path); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}
	fmt.Printf("Config written to %s\n", path)
	return nil
}
