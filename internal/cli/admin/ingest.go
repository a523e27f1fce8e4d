package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/fhirchat/internal/config"
	"github.com/cloo-solutions/fhirchat/internal/database"
	"github.com/spf13/cobra"
)

// IngestCmd loads a directory of knowledge documents into the snippet store.
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Ingest knowledge snippets",
		Long: `Chunk, embed and store every .md, .markdown and .json document under <dir>.
Markdown files may carry YAML front matter with id, source_label and source_url.
Requires FHIRCHAT_DATABASE_URL; without a database there is nothing to persist to.`,
		Args: cobra.ExactArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().Bool("no-migrate", false, "Skip database migrations before ingesting")
	cmd.Flags().String("migrations", database.DefaultMigrationsDir, "Directory holding migration files")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasDatabase() {
		return fmt.Errorf("FHIRCHAT_DATABASE_URL is required for ingest")
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	migrationsDir, _ := cmd.Flags().GetString("migrations")

	a, err := newApp(ctx, cfg, newLogger(cfg), appOptions{migrate: !noMigrate, migrationsDir: migrationsDir})
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.ingest.IngestDir(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to ingest %s: %w", args[0], err)
	}

	if outputFormat == "json" {
		output, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Println(string(output))
	} else {
		fmt.Printf("Ingested %d documents as %d snippets\n", result.Documents, result.Snippets)
	}

	return nil
}
