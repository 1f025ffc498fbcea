// Command carechat-tui is a terminal client for the patient appointment
// assistant. Run without arguments for the interactive chat; the health, send
// and reset subcommands talk to the same service from scripts.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"carechat/internal/controller"
	"carechat/internal/logging"
	"carechat/internal/protocol"
	"carechat/internal/session"
)

// cli carries what PersistentPreRunE resolved to the command bodies.
type cli struct {
	flags  flagValues
	cfg    appConfig
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	app := &cli{}
	root := &cobra.Command{
		Use:   "carechat-tui",
		Short: "Chat with the patient appointment assistant",
		Long: `carechat-tui talks to the appointment assistant over its HTTP JSON API.

The server owns verification, OTP and lockout. The client keeps a copy of the
session state it reports and replaces it on every reply.

Run without arguments to start the interactive chat interface.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, app.flags)
			if err != nil {
				return err
			}
			// The interactive UI owns the terminal, so it logs to a file.
			logPath := cfg.logPath
			if logPath == "" && cmd.Parent() == nil {
				logPath = logging.DefaultFilePath()
				cfg.logPath = logPath
			}
			logger, err := logging.New(logging.Config{Level: cfg.logLevel, Format: cfg.logFormat, Path: logPath})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			app.cfg = cfg
			app.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.logger != nil {
				_ = app.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(app)
		},
	}
	bindFlags(root, &app.flags)

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the assistant service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context(), app, cmd.OutOrStdout())
		},
	}
	sendCmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send one message and print the reply and session state as JSON",
		Long: `Sends a single turn. Pass --session-id to continue an existing session;
otherwise a new identifier is generated and printed with the reply.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), app, strings.Join(args, " "), cmd.OutOrStdout())
		},
	}
	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset a session on the server (requires --session-id)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(cmd.Context(), app, cmd.OutOrStdout())
		},
	}
	root.AddCommand(healthCmd, sendCmd, resetCmd)
	return root
}

func newClient(cfg appConfig, logger *zap.Logger) *protocol.Client {
	return protocol.New(cfg.baseURL,
		protocol.WithHTTPClient(&http.Client{Timeout: cfg.timeout}),
		protocol.WithUserAgent(userAgent(cfg)),
		protocol.WithLogger(logger),
	)
}

func userAgent(cfg appConfig) string {
	return "carechat-tui/" + nullCoalesce(cfg.appVersion, version)
}

func newController(cfg appConfig, client *protocol.Client, logger *zap.Logger) *controller.Controller {
	return controller.New(session.NewStore(), client,
		controller.WithSessionID(cfg.sessionID),
		controller.WithTrace(cfg.trace),
		controller.WithClientMeta(protocol.ClientMeta{UserAgent: userAgent(cfg), AppVersion: cfg.appVersion}),
		controller.WithLogger(logger),
	)
}

func runInteractive(app *cli) error {
	client := newClient(app.cfg, app.logger)
	ctrl := newController(app.cfg, client, app.logger)
	app.logger.Info("interactive session starting",
		zap.String("base_url", client.BaseURL()),
		zap.String("session_id", ctrl.SessionID()),
		zap.Bool("trace", app.cfg.trace),
	)

	opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if app.cfg.altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(newModel(app.cfg, client, ctrl, app.logger), opts...)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("carechat-tui fatal error: %w", err)
	}
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runHealth(parent context.Context, app *cli, out io.Writer) error {
	ctx, cancel := signalContext(parent)
	defer cancel()
	client := newClient(app.cfg, app.logger)
	health, err := client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health: %s: %w", controller.Describe(err), err)
	}
	return writeRaw(out, health.Raw)
}

type sendOutput struct {
	SessionID   string          `json:"session_id"`
	Reply       string          `json:"reply"`
	Suggestions []string        `json:"suggestions"`
	State       session.State   `json:"state"`
	Trace       json.RawMessage `json:"trace,omitempty"`
}

func runSend(parent context.Context, app *cli, message string, out io.Writer) error {
	ctx, cancel := signalContext(parent)
	defer cancel()
	client := newClient(app.cfg, app.logger)
	ctrl := newController(app.cfg, client, app.logger)

	outcome, err := ctrl.Submit(ctx, message)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if outcome.Err != nil {
		return fmt.Errorf("send: %s: %w", controller.Describe(outcome.Err), outcome.Err)
	}
	store := ctrl.Store()
	return writeJSON(out, sendOutput{
		SessionID:   ctrl.SessionID(),
		Reply:       outcome.Assistant.Content,
		Suggestions: store.Suggestions(),
		State:       store.State(),
		Trace:       outcome.Trace,
	})
}

func runReset(parent context.Context, app *cli, out io.Writer) error {
	if app.cfg.sessionID == "" {
		return errors.New("reset: --session-id is required")
	}
	ctx, cancel := signalContext(parent)
	defer cancel()
	client := newClient(app.cfg, app.logger)
	if err := client.ResetSession(ctx, app.cfg.sessionID); err != nil {
		return fmt.Errorf("reset: %s: %w", controller.Describe(err), err)
	}
	_, err := fmt.Fprintf(out, "session %s reset\n", app.cfg.sessionID)
	return err
}

func writeJSON(out io.Writer, value any) error {
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(raw))
	return err
}

// writeRaw pretty-prints body when it is JSON and echoes it otherwise.
func writeRaw(out io.Writer, body []byte) error {
	var buf bytes.Buffer
	if json.Valid(body) && json.Indent(&buf, body, "", "  ") == nil {
		body = buf.Bytes()
	}
	_, err := fmt.Fprintln(out, strings.TrimSpace(string(body)))
	return err
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
