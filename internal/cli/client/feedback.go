package client

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func FeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback <up|down>",
		Short: "Rate the last answer",
		Long: `Record a thumbs up or down on an answer of the current session.

Without --message the most recent answer of the session is rated.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE:      runFeedback,
	}

	cmd.Flags().StringP("session", "s", "", "Session id (defaults to the saved session)")
	cmd.Flags().StringP("message", "m", "", "Message id printed after the answer")
	cmd.Flags().StringP("comment", "c", "", "Optional comment")

	return cmd
}

func runFeedback(cmd *cobra.Command, args []string) error {
	rating := strings.ToLower(args[0])
	if rating != "up" && rating != "down" {
		return fmt.Errorf("rating must be 'up' or 'down'")
	}

	client, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	sessionID, err := sessionFor(cmd)
	if err != nil {
		return err
	}
	messageID, _ := cmd.Flags().GetString("message")
	comment, _ := cmd.Flags().GetString("comment")

	resp, err := client.Feedback(FeedbackRequest{
		SessionID: sessionID,
		MessageID: messageID,
		Rating:    rating,
		Comment:   comment,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
	return nil
}
