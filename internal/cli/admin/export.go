package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/fhirchat/internal/config"
	"github.com/spf13/cobra"
)

// ExportLogsCmd archives unexported chat logs to the configured bucket once.
func ExportLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-logs",
		Short: "Archive pending chat logs to object storage",
		Long:  "Write every chat log entry not yet exported to the S3 bucket as JSON Lines and mark it exported",
		Args:  cobra.NoArgs,
		RunE:  runExportLogs,
	}
}

func runExportLogs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasDatabase() {
		return fmt.Errorf("FHIRCHAT_DATABASE_URL is required for export-logs")
	}
	if !cfg.HasS3() {
		return fmt.Errorf("FHIRCHAT_S3_ENDPOINT and credentials are required for export-logs")
	}

	a, err := newApp(ctx, cfg, newLogger(cfg), appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	exporter, err := a.newLogExporter(ctx)
	if err != nil {
		return err
	}

	n, err := exporter.ExportPending(ctx)
	if err != nil {
		return fmt.Errorf("export stopped after %d entries: %w", n, err)
	}

	fmt.Printf("Exported %d chat log entries to s3://%s\n", n, cfg.S3Bucket)
	return nil
}
