package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/hikyaku"
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		port      int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over HTTP (streamable + SSE) or stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := transport
			if t == "" {
				t = os.Getenv("HIKYAKU_TRANSPORT")
			}
			logger := newLogger(t)

			opts := []hikyaku.Option{
				hikyaku.WithLogger(logger),
				hikyaku.WithVersion(version),
			}
			if transport != "" {
				opts = append(opts, hikyaku.WithTransport(transport))
			}
			if port != 0 {
				opts = append(opts, hikyaku.WithPort(port))
			}

			app, err := hikyaku.New(opts...)
			if err != nil {
				logger.Error("startup failed", "error", err)
				return err
			}
			if err := app.Run(cmd.Context()); err != nil {
				logger.Error("fatal error", "error", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&transport, "transport", "", `"http" or "stdio" (overrides HIKYAKU_TRANSPORT)`)
	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides HIKYAKU_PORT)")
	return cmd
}
