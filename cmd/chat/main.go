package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/capitalize-ai/assistant-chat/internal/chat"
	"github.com/capitalize-ai/assistant-chat/internal/config"
	"github.com/capitalize-ai/assistant-chat/internal/tui"
	"github.com/capitalize-ai/assistant-chat/pkg/logger"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd(cfg *config.ClientConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "chat",
		Short:        "Terminal client for the assistant",
		Long:         "Chat with the assistant stream endpoint from the terminal.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "stream endpoint URL")
	flags.StringVar(&cfg.Token, "token", cfg.Token, "bearer token (see 'chat token')")
	flags.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "limit for a whole exchange, 0 for none")
	flags.BoolVar(&cfg.StrictCompletion, "strict", cfg.StrictCompletion, "report streams that end without a completion event as errors")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newAskCmd(cfg))
	cmd.AddCommand(newTokenCmd(cfg))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chat %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func newClientLogger(cfg *config.ClientConfig) (*logger.Logger, error) {
	// The terminal belongs to the UI; logs go to a file or nowhere.
	if cfg.LogFile == "" {
		return logger.NewNop(), nil
	}
	return logger.NewFile(cfg.LogLevel, cfg.LogFile)
}

func controllerOptions(cfg *config.ClientConfig, log *logger.Logger) chat.Options {
	return chat.Options{
		Endpoint:         cfg.Endpoint,
		HTTPClient:       &http.Client{},
		Token:            chat.StaticToken(cfg.Token),
		Timeout:          cfg.Timeout,
		StrictCompletion: cfg.StrictCompletion,
		Logger:           log,
	}
}

func runTUI(ctx context.Context, cfg *config.ClientConfig) error {
	log, err := newClientLogger(cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()

	relay := &tui.Relay{}
	opts := controllerOptions(cfg, log)
	opts.OnChange = relay.OnChange
	opts.OnError = relay.OnError
	ctrl := chat.NewController(opts)

	model := tui.New(tui.Options{
		Controller:      ctrl,
		Notices:         tui.NewFileNoticeStore(cfg.NoticeFile),
		ScrollThreshold: cfg.ScrollThreshold,
		Context:         ctx,
		Logger:          log,
	})
	return tui.Run(ctx, model, relay)
}

func execute(ctx context.Context, cmd *cobra.Command) int {
	if err := cmd.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newRootCmd(config.LoadClient()))
	stop()
	os.Exit(code)
}
