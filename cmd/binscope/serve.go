package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jward/binscope"
	"github.com/jward/binscope/internal/archive"
	"github.com/jward/binscope/internal/config"
	"github.com/jward/binscope/internal/rpc"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve documents over JSON-RPC",
	Long:  "Starts the JSON-RPC server. With --archive, uploads and translation summaries are persisted to SQLite; --restore reloads archived documents at startup.",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("listen", config.DefaultListen, "listen address")
	f.Int("workers", 0, "optimizer worker count (default: number of CPUs)")
	f.Int("fixpoint-limit", binscope.DefaultFixpointLimit, "dead code elimination iteration cap")
	f.String("archive", "", "SQLite archive path (empty disables persistence)")
	f.Bool("restore", false, "reload archived documents at startup")
	f.String("log-level", "info", "log level: debug|info|warn|error")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, closeArchive, err := newService(cfg)
	if err != nil {
		return err
	}
	defer closeArchive()

	if cfg.Restore {
		n, err := svc.Restore(ctx)
		if err != nil {
			return fmt.Errorf("restoring archive: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Restored %d document(s) from %s\n", n, cfg.Archive)
	}

	srv := rpc.NewServer(svc, rpc.WithServerLogger(logger))
	return srv.Serve(ctx, cfg.Listen)
}

// newService builds a Service from c. The returned func closes the
// archive, if one was opened.
func newService(c *config.Config) (*binscope.Service, func(), error) {
	opts := []binscope.Option{
		binscope.WithLogger(logger),
		binscope.WithWorkers(c.Workers),
		binscope.WithFixpointLimit(c.FixpointLimit),
	}
	closeFn := func() {}

	if c.Archive != "" {
		a, err := archive.Open(c.Archive)
		if err != nil {
			return nil, nil, fmt.Errorf("opening archive: %w", err)
		}
		if err := a.Migrate(); err != nil {
			a.Close()
			return nil, nil, fmt.Errorf("migrating archive: %w", err)
		}
		opts = append(opts, binscope.WithArchive(a))
		closeFn = func() {
			if err := a.Close(); err != nil {
				logger.Warn("closing archive", zap.Error(err))
			}
		}
	}
	return binscope.NewService(opts...), closeFn, nil
}
