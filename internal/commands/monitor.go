package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the forwarding workers without the dashboard",
		Long: `Run only the supervisor that keeps one forwarding worker per user with an active
configuration. Configuration changes made in the dashboard are picked up on the next reconcile.
Example: forwarder worker --config=/etc/forwarder/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunWorker(configPath)
		},
	}

	rootCmd.AddCommand(workerCmd)
}

// RunWorker runs the supervisor with the config at path until SIGINT or
// SIGTERM.
func RunWorker(path string) error {
	configPath = path
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("Starting forwarding workers (reconcile every %s)...\n", a.cfg.Worker.ReconcileInterval)
	return a.newSupervisor().Run(ctx)
}
