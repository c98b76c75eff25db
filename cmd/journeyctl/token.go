package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	jwttoken "onboarding/internal/jwt_token"
	"onboarding/internal/platform/config"
)

func newTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Mint a development access token",
		Long: `Mint an access token signed with JWT_SIGNING_KEY for the given user, or a
random one when omitted. Refused when ONBOARDING_ENV is production.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to mint tokens in production")
			}
			userID := uuid.New()
			if len(args) == 1 {
				if userID, err = uuid.Parse(args[0]); err != nil {
					return fmt.Errorf("invalid user id: %w", err)
				}
			}
			svc := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
			token, err := svc.GenerateAccessToken(userID, ttl)
			if err != nil {
				return err
			}
			if jsonOutput {
				fmt.Fprintf(cmd.OutOrStdout(), "{\"user_id\":%q,\"token\":%q}\n", userID, token)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
