package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/fhirchat/internal/cli"
	"github.com/cloo-solutions/fhirchat/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fhirchatd",
		Short: "FHIR consulting chat daemon",
		Long:  "fhirchatd runs the chat API server and its maintenance tasks: migrations, knowledge ingestion and chat log export",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.MigrateCmd())
	rootCmd.AddCommand(admin.IngestCmd())
	rootCmd.AddCommand(admin.ExportLogsCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
