package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/agendia/assistant/internal/pipeline"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the assistant a question",
	Long: `Ask the assistant a question against a running server.

Examples:
  assistant ask "¿Cómo cierro un horario?"
  assistant ask --path /schedules "¿Puedo bloquear este día?"
  assistant ask --session s-1 "¿Y cómo lo reabro?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")
		userID, _ := cmd.Flags().GetString("user")
		path, _ := cmd.Flags().GetString("path")

		if sessionID == "" {
			sessionID = uuid.New().String()
		}

		req := pipeline.Request{
			Question:  question,
			SessionID: sessionID,
			UserID:    userID,
		}
		if path != "" {
			req.UIContext = &pipeline.UIContext{CurrentPath: path}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/ask", req)
		if err != nil {
			return err
		}

		var answer pipeline.Response
		if err := decodeJSON(resp, &answer); err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, answer.Answer)
		if len(answer.Sources) > 0 {
			printStatus("fuentes", "%d", len(answer.Sources))
			for _, s := range answer.Sources {
				fmt.Fprintf(os.Stderr, "    - %s (%s)\n", s.FilePath, s.Module)
			}
		}
		printStatus("confianza", "%s", answer.Confidence)
		if answer.Cached {
			printStatus("cache", "hit")
		}
		printStatus("sesión", "%s", sessionID)
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the assistant server is up",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/health")
		if err != nil {
			printError("assistant is not running")
			return err
		}

		var health map[string]string
		if err := decodeJSON(resp, &health); err != nil {
			return err
		}
		printSuccess("assistant is running")
		printStatus("status", "%s", health["status"])
		return nil
	},
}

// --- invalidate-cache ---

var invalidateCacheCmd = &cobra.Command{
	Use:   "invalidate-cache <module>",
	Short: "Drop cached answers that used a module's documentation",
	Long: `Drop cached answers that used a module's documentation.

Run after deploying updated documentation for a module so stale answers
stop being served.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/cache/invalidate", map[string]string{"module": args[0]})
		if err != nil {
			return err
		}

		var result struct {
			Removed int `json:"removed"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Removed %d cached answers for module %s", result.Removed, args[0])
		return nil
	},
}

// --- reset-session ---

var resetSessionCmd = &cobra.Command{
	Use:   "reset-session <session-id>",
	Short: "Clear a session's conversation memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/sessions/"+args[0]+"/reset", nil)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Session %s reset", args[0])
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "", "conversation session id (default: new session)")
	askCmd.Flags().String("user", "", "account id for usage attribution")
	askCmd.Flags().String("path", "", "UI path context, e.g. /appointments")
}
