package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/hikyaku"
	"github.com/ashita-ai/hikyaku/internal/config"
)

var errSendFailed = errors.New("send failed")

func newSendCmd() *cobra.Command {
	var e hikyaku.Email
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one email through the configured transport",
		Long: `Send one email through the same traced path the sendEmail tool uses.
The attempt is recorded in the delivery log. Pass --body - to read the body
from stdin. Exits non-zero when the send fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if e.Body == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read body: %w", err)
				}
				e.Body = string(b)
			}

			// No listener is needed; the stdio transport skips HTTP wiring.
			app, err := hikyaku.New(
				hikyaku.WithLogger(newLogger(config.TransportStdio)),
				hikyaku.WithVersion(version),
				hikyaku.WithTransport(config.TransportStdio),
			)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close(cmd.Context()) }()

			res := app.SendEmail(cmd.Context(), e)
			fmt.Fprintln(cmd.OutOrStdout(), res.Message)
			if !res.OK {
				return errSendFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&e.To, "to", "", "recipient address (required)")
	cmd.Flags().StringVar(&e.From, "from", "", "sender address (defaults to HIKYAKU_DEFAULT_FROM)")
	cmd.Flags().StringVar(&e.Subject, "subject", "", "subject line")
	cmd.Flags().StringVar(&e.Body, "body", "", `message body, or "-" for stdin`)
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
