package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/hitoshi/evalman/internal/client"
	"github.com/hitoshi/evalman/internal/tui"
)

const defaultServerURL = "http://localhost:8080"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var serverURL string

	root := &cobra.Command{
		Use:           "evalman-cli",
		Short:         "画像評価ワークフローのターミナルクライアント",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runTUI(serverURL)
		},
	}
	root.PersistentFlags().StringVar(&serverURL, "server", defaultServer(), "評価サーバーのベースURL")

	root.AddCommand(newWhoamiCmd(&serverURL))
	root.AddCommand(newLogoutCmd(&serverURL))
	return root
}

func defaultServer() string {
	if v := os.Getenv("EVALMAN_SERVER"); v != "" {
		return v
	}
	return defaultServerURL
}

// core はクライアント側の依存関係一式。
type core struct {
	api      *client.APIClient
	session  *client.SessionStore
	cursor   *client.WorkflowCursor
	form     *client.JudgmentForm
	pipeline *client.SubmissionPipeline
}

// buildCore はクライアントコアの依存関係一式を組み立てる。
func buildCore(serverURL string) (*core, error) {
	// TUI表示とログ出力が混ざらないよう、ログは破棄する
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	credPath, err := client.DefaultCredentialPath()
	if err != nil {
		return nil, err
	}
	creds := client.NewFileCredentialStore(credPath)
	api := client.NewAPIClient(serverURL, nil, logger)

	session := client.NewSessionStore(api, creds, logger)
	cursor := client.NewWorkflowCursor(api, session, logger)
	form := client.NewJudgmentForm()
	pipeline := client.NewSubmissionPipeline(api, session, cursor, form, logger)
	return &core{
		api:      api,
		session:  session,
		cursor:   cursor,
		form:     form,
		pipeline: pipeline,
	}, nil
}

func runTUI(serverURL string) error {
	c, err := buildCore(serverURL)
	if err != nil {
		return err
	}

	app := tui.New(c.session, c.cursor, c.form, c.pipeline, c.api)
	if _, err := tea.NewProgram(app, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("failed to run terminal UI: %w", err)
	}
	return nil
}

func newWhoamiCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "保存済みセッションのユーザーを表示する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := buildCore(*serverURL)
			if err != nil {
				return err
			}
			c.session.Restore(cmd.Context())

			user := c.session.User()
			if user == nil {
				return fmt.Errorf("ログインしていません")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> (%s)\n", user.Name, user.Email, user.Role)
			return nil
		},
	}
}

func newLogoutCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "保存済みセッションを破棄する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := buildCore(*serverURL)
			if err != nil {
				return err
			}
			c.session.Restore(cmd.Context())
			c.session.Logout(context.Background())
			fmt.Fprintln(cmd.OutOrStdout(), "ログアウトしました")
			return nil
		},
	}
}
