package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/parvesh-spec/messageforwarder/internal/export"
	"github.com/parvesh-spec/messageforwarder/internal/repository"
)

func init() {
	var (
		userID uint
		format string
		out    string
		since  time.Duration
	)

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect forwarding logs",
	}

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export forwarding logs to JSON or CSV",
		Long: `Export forwarding logs created within --since, oldest first. Without --user-id the logs
of every user are exported. Use --out=- to write to standard output.
Example: forwarder logs export --user-id=1 --format=csv --since=168h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogsExport(userID, format, out, since)
		},
	}

	exportCmd.Flags().UintVar(&userID, "user-id", 0, "Only export this user's logs")
	exportCmd.Flags().StringVarP(&format, "format", "f", export.FormatCSV, "Output format: json or csv")
	exportCmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default user<id>_logs_<date>.<format>)")
	exportCmd.Flags().DurationVar(&since, "since", 30*24*time.Hour, "Export logs newer than this")

	logsCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(logsCmd)
}

func runLogsExport(userID uint, format, out string, since time.Duration) error {
	if format != export.FormatJSON && format != export.FormatCSV {
		return fmt.Errorf("invalid format %q: must be json or csv", format)
	}

	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	now := time.Now()
	logs, err := repository.NewLogRepository(a.db).ListSince(ctx, userID, now.Add(-since))
	if err != nil {
		return fmt.Errorf("error loading logs: %w", err)
	}

	if out == "-" {
		if format == export.FormatJSON {
			return export.EncodeJSON(os.Stdout, logs)
		}
		w := export.NewCSVStream(os.Stdout)
		if err := export.WriteLogsCSV(w, logs); err != nil {
			return err
		}
		return w.Close()
	}

	if out == "" {
		out = export.FormatFilename(userID, now, format)
	}
	if err := export.WriteLogs(logs, out, format); err != nil {
		return err
	}
	fmt.Printf("Exported %d log entries to %s\n", len(logs), out)
	return nil
}
