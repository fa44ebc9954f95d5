package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashita-ai/hikyaku/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		keyPath string
		subject string
		name    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an agent",
		Long: `Sign a JWT with an Ed25519 private key (PKCS#8 PEM). The server verifies it
with the matching public key named by HIKYAKU_JWT_PUBLIC_KEY.

Generate a key pair with "hikyaku keygen".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(keyPath) //nolint:gosec // operator-supplied path
			if err != nil {
				return fmt.Errorf("read private key: %w", err)
			}
			priv, err := auth.ParsePrivateKey(raw)
			if err != nil {
				return err
			}
			token, exp, err := auth.IssueToken(priv, subject, name, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "", "path to the Ed25519 private key PEM (required)")
	cmd.Flags().StringVar(&subject, "sub", "", "token subject, usually the agent ID (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name stored in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
