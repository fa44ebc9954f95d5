// Command hikyaku runs the hikyaku MCP mail server and its companion tools.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()
	root := &cobra.Command{
		Use:   "hikyaku",
		Short: "MCP server that lets agents send traced email",
		Long: `hikyaku exposes a sendEmail tool over the Model Context Protocol.

Every send runs inside an OpenTelemetry span and is reported back to the
agent as a success or failure message. Configuration comes from HIKYAKU_*
environment variables (and a .env file, if present).`,
		Version:       version,
		SilenceUsage: true,
		// Bare "hikyaku" serves, so MCP client configs can omit the subcommand.
		RunE: serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, newSendCmd(), newKeygenCmd(), newTokenCmd(), newVersionCmd())
	return root
}

// newLogger builds the process logger. The stdio transport owns stdout, so
// logs go to stderr in that mode.
func newLogger(transport string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("HIKYAKU_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	var w io.Writer = os.Stdout
	if transport == "stdio" {
		w = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
