package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/machinegpt/internal/inbox"
)

var (
	watchGlob     string
	watchModelID  int64
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Ingest manuals as they are dropped into a directory",
	Long: `Watches dir recursively. A file matching --glob is registered and ingested
once no write has touched it for --debounce. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchGlob, "glob", inbox.DefaultPattern, "file pattern relative to dir")
	f.Int64Var(&watchModelID, "model", 0, "machine model the manuals document")
	f.DurationVar(&watchDebounce, "debounce", 2*time.Second, "quiet period before a file is ingested")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	w, err := inbox.NewWatcher(args[0], watchGlob, watchDebounce, s.logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "watching %s for %s\n", args[0], watchGlob)

	return w.Run(ctx, func(ctx context.Context, path string) {
		rep, err := ingestFile(ctx, s.app.Records, s.app.Ingest, s.tenant, path, watchModelID)
		if err != nil {
			s.logger.Error("Ingest failed", zap.String("path", path), zap.Error(err))
			fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
			return
		}
		printReport(out, path, rep)
	})
}
