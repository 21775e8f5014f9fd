package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/app"
	"github.com/kailas-cloud/machinegpt/internal/config"
	"github.com/kailas-cloud/machinegpt/internal/domain/tenant"
	logpkg "github.com/kailas-cloud/machinegpt/internal/logger"
	"github.com/kailas-cloud/machinegpt/internal/version"
)

var (
	envFlag       string
	producerID    int64
	endCustomerID int64
	userID        int64
	machineIDs    []int64
)

var rootCmd = &cobra.Command{
	Use:          "mgctl",
	Short:        "Operate the machine manual assistant",
	Version:      version.String(),
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFlag, "env", "", "config environment (default: $ENV or local)")
	pf.Int64Var(&producerID, "producer", 0, "producer id the command acts for")
	pf.Int64Var(&endCustomerID, "end-customer", 0, "end customer id (optional)")
	pf.Int64Var(&userID, "user", 0, "user id (optional)")
	pf.Int64SliceVar(&machineIDs, "machine", nil, "authorized machine ids (repeatable)")
}

// session is everything a command needs after bootstrapping.
type session struct {
	cfg    config.Config
	logger *zap.Logger
	app    *app.App
	tenant tenant.Context
}

func (s *session) Close() {
	s.app.Close()
	_ = s.logger.Sync()
}

func loadConfig() (string, config.Config, error) {
	env := envFlag
	if env == "" {
		env = config.GetEnv()
	}
	cfg, err := config.Load(env)
	if err != nil {
		return "", config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return env, cfg, nil
}

func tenantFromFlags() (tenant.Context, error) {
	tc, err := tenant.New(producerID, endCustomerID, userID, machineIDs)
	if err != nil {
		return tenant.Context{}, fmt.Errorf("--producer is required: %w", err)
	}
	return tc, nil
}

// bootstrap loads configuration and assembles the pipeline for a command.
func bootstrap(ctx context.Context) (*session, error) {
	tc, err := tenantFromFlags()
	if err != nil {
		return nil, err
	}
	env, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	// Warnings and up unless the config asks for more.
	level := cfg.Logging.Level
	if level == "" {
		level = "warn"
	}
	logger, err := logpkg.NewLogger(env, level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("build application: %w", err)
	}
	return &session{cfg: cfg, logger: logger, app: a, tenant: tc}, nil
}
