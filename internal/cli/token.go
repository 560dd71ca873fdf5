package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yieldvault/yield_service/internal/infrastructure/cache"
	"github.com/yieldvault/yield_service/pkg/auth"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenRevokeCmd)

	tokenIssueCmd.Flags().String("role", auth.RoleUser, "Role claim (user or admin)")
	tokenIssueCmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	tokenRevokeCmd.Flags().Duration("ttl", 30*24*time.Hour, "How long the revocation cutoff is kept")
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue and revoke bearer tokens for testing and operations",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue USER_ID",
	Short: "Sign a bearer token with the configured secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		role, _ := cmd.Flags().GetString("role")
		if role != auth.RoleUser && role != auth.RoleAdmin {
			return fmt.Errorf("unknown role %q", role)
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		token, claims, err := auth.GenerateToken(userID, role, cfg.JWT.Issuer, cfg.JWT.Secret, ttl)
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{
			"token":      token,
			"token_id":   claims.ID,
			"expires_at": claims.ExpiresAt.Time,
		})
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke USER_ID",
	Short: "Revoke every token issued to a user before now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")

		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()

		client, err := cache.NewRedisClient(cfg.Redis, log.Zap())
		if err != nil {
			return fmt.Errorf("revocation requires Redis: %w", err)
		}
		defer client.Close()

		if err := auth.NewTokenBlacklist(client.Client()).BlacklistUserTokens(cmd.Context(), userID.String(), ttl); err != nil {
			return err
		}
		log.Info("Tokens revoked", "user_id", userID.String())
		return nil
	},
}
