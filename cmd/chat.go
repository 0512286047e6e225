package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/podscout/podscout/internal/app"
	"github.com/podscout/podscout/internal/chat"
	"github.com/podscout/podscout/internal/config"
)

// localUserID identifies the console user. The CLI is single-user; the
// multi-user identity lives in the HTTP server.
const localUserID = "local"

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	ctrl, err := chat.NewController(chat.Config{
		Store:       a.Conversations,
		Engine:      a.Engine,
		Credentials: a.Credentials,
		Local:       a.Local,
		UserID:      localUserID,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "podscout - podcast research assistant")
	fmt.Fprintln(out, "Type /help for commands, /exit to quit.")

	return chatLoop(ctx, out, cmd.InOrStdin(), a, ctrl)
}

// chatLoop reads prompts until EOF or /exit.
func chatLoop(ctx context.Context, out io.Writer, in io.Reader, a *app.App, ctrl *chat.Controller) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			done, err := runCommand(ctx, out, a, ctrl, line)
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			if done {
				return nil
			}
			continue
		}

		_, err := ctrl.Submit(ctx, line, func(text string) {
			fmt.Fprint(out, text)
		})
		fmt.Fprintln(out)
		switch {
		case err == nil:
		case errors.Is(err, chat.ErrCredentialMissing):
			fmt.Fprintln(out, "No API key configured. Set one with /key <your-key>.")
		case errors.Is(err, context.Canceled):
			return nil
		default:
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

// runCommand handles slash commands. done means the loop should exit.
func runCommand(ctx context.Context, out io.Writer, a *app.App, ctrl *chat.Controller, line string) (done bool, err error) {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/exit", "/quit":
		return true, nil

	case "/help":
		fmt.Fprintln(out, "Commands:")
		fmt.Fprintln(out, "  /new             Start a new conversation")
		fmt.Fprintln(out, "  /list            List stored conversations")
		fmt.Fprintln(out, "  /open <id>       Continue a stored conversation")
		fmt.Fprintln(out, "  /key <api-key>   Store the generation API key")
		fmt.Fprintln(out, "  /exit            Quit")
		return false, nil

	case "/new":
		ctrl.Reset()
		fmt.Fprintln(out, "Started a new conversation.")
		return false, nil

	case "/list":
		convs, err := a.Conversations.ListForUser(ctx, localUserID)
		if err != nil {
			return false, err
		}
		if len(convs) == 0 {
			fmt.Fprintln(out, "No conversations yet.")
			return false, nil
		}
		for _, c := range convs {
			fmt.Fprintf(out, "  %s  %s  (%s)\n", c.ID, c.Title, c.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return false, nil

	case "/open":
		return false, openConversation(ctx, out, a, ctrl, arg)

	case "/key":
		key := strings.TrimSpace(arg)
		if key == "" {
			return false, errors.New("usage: /key <api-key>")
		}
		if err := a.Credentials.Set(ctx, key); err != nil {
			return false, err
		}
		fmt.Fprintln(out, "API key stored.")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s, try /help", cmd)
	}
}

func openConversation(ctx context.Context, out io.Writer, a *app.App, ctrl *chat.Controller, arg string) error {
	id, err := parseConversationID(arg)
	if err != nil {
		return err
	}
	conv, err := a.Conversations.Get(ctx, localUserID, id)
	if err != nil {
		return err
	}
	if err := ctrl.Open(ctx, conv); err != nil {
		return err
	}
	fmt.Fprintf(out, "Continuing %q (%d messages).\n", conv.Title, len(ctrl.Messages()))
	return nil
}
