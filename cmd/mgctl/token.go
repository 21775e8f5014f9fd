package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	tenantuc "github.com/kailas-cloud/machinegpt/internal/usecase/tenant"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for the tenant flags",
	Long: `Signs a tenant token with the configured auth secret. The token carries
the producer, end customer, user and authorized machines given as flags.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	tc, err := tenantFromFlags()
	if err != nil {
		return err
	}
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resolver, err := tenantuc.NewResolver(tenantuc.Config{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
		Leeway: time.Duration(cfg.Auth.LeewaySec) * time.Second,
	})
	if err != nil {
		return err
	}

	token, err := resolver.Issue(tc, tokenTTL)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
