package client

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/cloo-solutions/fhirchat/internal/service"
	"github.com/spf13/cobra"
)

// AdminCmd groups the remote admin commands that need an admin token.
func AdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage knowledge snippets and inspect chat logs",
	}

	cmd.PersistentFlags().String("admin-token", "", "Admin token (overrides env and config)")

	cmd.AddCommand(adminIngestCmd())
	cmd.AddCommand(adminDeleteCmd())
	cmd.AddCommand(adminLogsCmd())

	return cmd
}

func adminIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <dir>",
		Short: "Upload a directory of knowledge documents",
		Long:  "Parse every .md, .markdown and .json document under <dir> and send them to POST /admin/snippets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := service.LoadSnippetDir(args[0])
			if err != nil {
				return err
			}
			if len(inputs) == 0 {
				return fmt.Errorf("no documents found in %s", args[0])
			}

			docs := make([]SnippetDocument, 0, len(inputs))
			for _, in := range inputs {
				docs = append(docs, SnippetDocument{
					ID:          in.ID,
					Content:     in.Content,
					SourceLabel: in.SourceLabel,
					SourceURL:   in.SourceURL,
				})
			}

			client, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			result, err := client.IngestSnippets(docs)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d documents as %d snippets\n", result.Documents, result.Snippets)
			return nil
		},
	}
}

func adminDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <snippet-id>",
		Short: "Delete a knowledge snippet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			if err := client.DeleteSnippet(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func adminLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List chat log entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			cursor, _ := cmd.Flags().GetString("cursor")
			limit, _ := cmd.Flags().GetInt("limit")

			client, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}
			page, err := client.ListChatLogs(sessionID, cursor, limit)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(page)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tSESSION\tKIND\tCITES\tTOKENS\tMS\tFEEDBACK\tQUERY")
			for _, l := range page.Items {
				feedback := "-"
				if l.Feedback != nil {
					feedback = l.Feedback.Rating
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					l.CreatedAt, l.SessionID, l.ResponseKind, l.CitationCount,
					l.TokensConsumed, l.ProcessingMs, feedback, truncate(l.Query, 60))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if page.HasMore {
				fmt.Fprintf(cmd.OutOrStdout(), "\nMore entries: --cursor %s\n", page.Cursor)
			}
			return nil
		},
	}

	cmd.Flags().StringP("session", "s", "", "Only entries of this session")
	cmd.Flags().String("cursor", "", "Cursor from a previous page")
	cmd.Flags().IntP("limit", "n", 20, "Page size (max 100)")

	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
