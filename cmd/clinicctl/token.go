package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/clinicguard/pkg/config"
	"github.com/doodlesbykumbi/clinicguard/pkg/server/middleware"
)

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage identity tokens",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'token' requires a subcommand (issue)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(1)
	},
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <user-id> <role>",
	Short: "Issue an identity token signed with jwt_secret",
	Long: `Issue an HS256 identity token for a staff member. In production tokens
come from the clinic's identity provider; this is for bootstrap and testing.

Example:
  clinicctl token issue dr-lee dentist --ttl 8h`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if ttl <= 0 {
			return fmt.Errorf("ttl must be positive")
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cfg.JWTSecret == "" {
			return fmt.Errorf("jwt_secret is required")
		}

		now := time.Now()
		token, err := middleware.NewJWTAuthenticator([]byte(cfg.JWTSecret), cfg).Sign(middleware.Claims{
			Role: args[1],
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   args[0],
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			},
		})
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)
	tokenIssueCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
}
