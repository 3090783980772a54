package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/capitalize-ai/assistant-chat/internal/config"
	"github.com/capitalize-ai/assistant-chat/internal/middleware"
)

func newTokenCmd(cfg *config.ClientConfig) *cobra.Command {
	var (
		userID   string
		tenantID string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}
			token, err := middleware.IssueToken(cfg.JWTSecret, userID, tenantID, ttl)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "dev-user", "subject claim")
	cmd.Flags().StringVar(&tenantID, "tenant", "1", "tenant_id claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
