package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/servicedesk/internal/auth"
	"github.com/spec-kit/servicedesk/internal/config"
	"github.com/spec-kit/servicedesk/internal/domain"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for a user, for local testing",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		id, _ := cmd.Flags().GetString("user")
		role, _ := cmd.Flags().GetString("role")
		branch, _ := cmd.Flags().GetString("branch")
		if id == "" {
			return fmt.Errorf("user flag is required")
		}

		tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL())
		token, expiresAt, err := tokens.GenerateToken(domain.Actor{ID: id, Role: domain.Role(role), BranchID: branch})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format("2006-01-02 15:04:05 MST"))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringP("user", "u", "", "user id placed in the sub claim")
	tokenCmd.Flags().StringP("role", "r", string(domain.RoleUser), "role claim")
	tokenCmd.Flags().StringP("branch", "b", "", "branch id claim")
}
