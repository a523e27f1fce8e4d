package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/fhirchat/internal/cli"
	"github.com/cloo-solutions/fhirchat/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "fhirchat",
		Short: "Ask the FHIR consulting assistant from the terminal",
		Long: `fhirchat talks to a running fhirchatd instance.

Environment variables:
  FHIRCHAT_API_URL       API base URL (default: http://localhost:8080)
  FHIRCHAT_ADMIN_TOKEN   Admin token for the admin commands`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.ChatCmd())
	rootCmd.AddCommand(client.FeedbackCmd())
	rootCmd.AddCommand(client.AdminCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
