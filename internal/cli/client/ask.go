package client

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// maxLocalHistory bounds the history the interactive chat resends.
const maxLocalHistory = 8

func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the FHIR assistant a question",
		Long: `Send one question to the chat API and print the answer with its references.

The session id is saved in the user config directory so follow-up questions
and feedback refer to the same conversation. Use --new-session to start over.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}

	cmd.Flags().StringP("session", "s", "", "Session id (defaults to the saved session)")
	cmd.Flags().Bool("new-session", false, "Start a new session before asking")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	client, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	sessionID, err := sessionFor(cmd)
	if err != nil {
		return err
	}

	resp, err := client.Chat(ChatRequest{
		Message:   strings.Join(args, " "),
		SessionID: sessionID,
	})
	if resp == nil {
		return err
	}

	if jsonOutput(cmd) {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(resp); encErr != nil {
			return encErr
		}
		return err
	}

	printChatResponse(cmd.OutOrStdout(), resp)
	return err
}

func ChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long:  "Read questions line by line from stdin and keep the conversation history between turns. An empty line or EOF ends the session.",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}

	cmd.Flags().StringP("session", "s", "", "Session id (defaults to the saved session)")
	cmd.Flags().Bool("new-session", false, "Start a new session")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	client, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	sessionID, err := sessionFor(cmd)
	if err != nil {
		return err
	}

	return converse(client, sessionID, cmd.InOrStdin(), cmd.OutOrStdout())
}

// converse runs the interactive loop. A failed turn is printed and the
// conversation continues; only transport errors end it.
func converse(client *APIClient, sessionID string, in io.Reader, out io.Writer) error {
	var history []HistoryMessage
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			return nil
		}

		resp, err := client.Chat(ChatRequest{
			Message:             question,
			SessionID:           sessionID,
			ConversationHistory: history,
		})
		var apiErr *APIError
		if err != nil && !errors.As(err, &apiErr) {
			return err
		}

		printChatResponse(out, resp)
		if resp.Success {
			history = append(history,
				HistoryMessage{Role: "user", Content: question},
				HistoryMessage{Role: "assistant", Content: resp.Response},
			)
			if len(history) > maxLocalHistory {
				history = history[len(history)-maxLocalHistory:]
			}
		}
	}
}

func printChatResponse(out io.Writer, resp *ChatResponse) {
	fmt.Fprintln(out, resp.Response)

	if len(resp.Citations) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "References:")
		for i, c := range resp.Citations {
			if c.URL != "" {
				fmt.Fprintf(out, "  [%d] %s <%s>\n", i+1, c.Source, c.URL)
			} else {
				fmt.Fprintf(out, "  [%d] %s\n", i+1, c.Source)
			}
		}
	}

	if resp.SuggestedAction == "contact_expert" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Tip: contact one of our FHIR experts for help with this topic.")
	}

	if resp.MessageID != "" {
		fmt.Fprintf(out, "\n(message %s)\n", resp.MessageID)
	}
}

func sessionFor(cmd *cobra.Command) (string, error) {
	if s, _ := cmd.Flags().GetString("session"); s != "" {
		return s, nil
	}
	if fresh, _ := cmd.Flags().GetBool("new-session"); fresh {
		if err := ResetSession(); err != nil {
			return "", err
		}
	}
	return CurrentSession()
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}
