// Package cli implements the recvctl operator commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/receivables/internal/app"
	"github.com/odyssey-erp/receivables/internal/reporting"
	"github.com/odyssey-erp/receivables/jobs"
)

// AgingLoader computes aging reports.
type AgingLoader interface {
	AgingReport(ctx context.Context, orgID uuid.UUID, asOf time.Time) (reporting.AgingReport, error)
}

// SnapshotEnqueuer submits aging snapshot tasks.
type SnapshotEnqueuer interface {
	EnqueueAgingSnapshot(ctx context.Context, payload jobs.AgingSnapshotPayload) (*asynq.TaskInfo, error)
	Close() error
}

// Options wires the commands to their backends. Zero-valued writers default to
// the process streams.
type Options struct {
	Stdout      io.Writer
	Stderr      io.Writer
	LoadConfig  func() (*app.Config, error)
	Migrate     func(cfg *app.Config, logger *slog.Logger) error
	OpenReports func(ctx context.Context, cfg *app.Config) (AgingLoader, func(), error)
	OpenJobs    func(cfg *app.Config) (SnapshotEnqueuer, error)
	Now         func() time.Time
}

func (o *Options) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.LoadConfig == nil {
		o.LoadConfig = func() (*app.Config, error) { return app.LoadConfig() }
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// NewRootCommand assembles the recvctl command tree.
func NewRootCommand(opts Options) *cobra.Command {
	opts.defaults()
	root := &cobra.Command{
		Use:           "recvctl",
		Short:         "Operate the receivables reporting service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.AddCommand(newMigrateCommand(&opts), newAgingCommand(&opts), newJobsCommand(&opts))
	return root
}

func newMigrateCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Migrate == nil {
				return errors.New("migrate: not configured")
			}
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(opts.Stderr, nil))
			if err := opts.Migrate(cfg, logger); err != nil {
				return err
			}
			fmt.Fprintln(opts.Stdout, "migrations applied")
			return nil
		},
	}
}

func newAgingCommand(opts *Options) *cobra.Command {
	var (
		orgFlag  string
		asOfFlag string
	)
	cmd := &cobra.Command{
		Use:   "aging",
		Short: "Print the aging report of an organisation as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := uuid.Parse(orgFlag)
			if err != nil {
				return fmt.Errorf("aging: invalid --org %q", orgFlag)
			}
			asOf := opts.Now()
			if asOfFlag != "" {
				if asOf, err = time.Parse(time.DateOnly, asOfFlag); err != nil {
					return fmt.Errorf("aging: invalid --as-of %q, want YYYY-MM-DD", asOfFlag)
				}
			}
			if opts.OpenReports == nil {
				return errors.New("aging: not configured")
			}
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			reports, closeFn, err := opts.OpenReports(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if closeFn != nil {
				defer closeFn()
			}
			report, err := reports.AgingReport(cmd.Context(), orgID, asOf)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(opts.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&orgFlag, "org", "", "organization id")
	cmd.Flags().StringVar(&asOfFlag, "as-of", "", "report date (YYYY-MM-DD), defaults to today")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newJobsCommand(opts *Options) *cobra.Command {
	jobsCmd := &cobra.Command{Use: "jobs", Short: "Manage background jobs"}
	triggerCmd := &cobra.Command{Use: "trigger", Short: "Enqueue a job now"}

	var payload jobs.AgingSnapshotPayload
	snapshotCmd := &cobra.Command{
		Use:   "aging-snapshot",
		Short: "Enqueue the aging snapshot job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if payload.OrganizationID != "" {
				if _, err := uuid.Parse(payload.OrganizationID); err != nil {
					return fmt.Errorf("jobs: invalid --org %q", payload.OrganizationID)
				}
			}
			if payload.AsOf != "" {
				if _, err := time.Parse(time.DateOnly, payload.AsOf); err != nil {
					return fmt.Errorf("jobs: invalid --as-of %q, want YYYY-MM-DD", payload.AsOf)
				}
			}
			if opts.OpenJobs == nil {
				return errors.New("jobs: not configured")
			}
			cfg, err := opts.LoadConfig()
			if err != nil {
				return err
			}
			client, err := opts.OpenJobs(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			info, err := client.EnqueueAgingSnapshot(cmd.Context(), payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(opts.Stdout, "enqueued %s id=%s queue=%s\n", jobs.TaskAgingSnapshot, info.ID, info.Queue)
			return nil
		},
	}
	snapshotCmd.Flags().StringVar(&payload.OrganizationID, "org", "", "limit to one organization id")
	snapshotCmd.Flags().StringVar(&payload.AsOf, "as-of", "", "snapshot date (YYYY-MM-DD), defaults to today")

	triggerCmd.AddCommand(snapshotCmd)
	jobsCmd.AddCommand(triggerCmd)
	return jobsCmd
}
