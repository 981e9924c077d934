package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/receivables/cmd/recvctl/cli"
	"github.com/odyssey-erp/receivables/internal/app"
	"github.com/odyssey-erp/receivables/internal/ledger"
	"github.com/odyssey-erp/receivables/internal/platform/db"
	"github.com/odyssey-erp/receivables/internal/reporting"
	"github.com/odyssey-erp/receivables/jobs"
	"github.com/odyssey-erp/receivables/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping recvctl")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(cli.Options{
		Migrate: func(cfg *app.Config, logger *slog.Logger) error {
			return db.RunMigrations(cfg.PGDSN, migrations.FS, logger)
		},
		OpenReports: func(ctx context.Context, cfg *app.Config) (cli.AgingLoader, func(), error) {
			pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
			if err != nil {
				return nil, nil, err
			}
			return reporting.NewService(ledger.NewRepository(pool), nil, app.NewLogger(cfg)), pool.Close, nil
		},
		OpenJobs: func(cfg *app.Config) (cli.SnapshotEnqueuer, error) {
			return jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		},
	})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "recvctl:", err)
		os.Exit(1)
	}
}
