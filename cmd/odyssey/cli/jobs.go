package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-finance/internal/app"
	"github.com/odyssey-erp/odyssey-finance/jobs"
)

// TaskEnqueuer submits engine tasks.
type TaskEnqueuer interface {
	EnqueueStatusSweep(ctx context.Context, payload jobs.StatusSweepPayload) (*asynq.TaskInfo, error)
	EnqueueReportsWarmup(ctx context.Context, payload jobs.ReportsWarmupPayload) (*asynq.TaskInfo, error)
}

// QueueInspector is the subset of asynq.Inspector the CLI reads.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	enqueuer  TaskEnqueuer
	inspector QueueInspector
	closers   []io.Closer
}

// NewJobsCLI initialises the CLI helpers against the given Redis endpoint.
func NewJobsCLI(redisOpts asynq.RedisClientOpt) (*JobsCLI, error) {
	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		return nil, err
	}
	inspector := asynq.NewInspector(redisOpts)
	return &JobsCLI{enqueuer: client, inspector: inspector, closers: []io.Closer{inspector, client}}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, kinds []string) (*asynq.TaskInfo, error) {
	if c == nil || c.enqueuer == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case jobs.TaskStatusSweep:
		return c.enqueuer.EnqueueStatusSweep(ctx, jobs.StatusSweepPayload{Kinds: kinds})
	case jobs.TaskReportsWarmup:
		return c.enqueuer.EnqueueReportsWarmup(ctx, jobs.ReportsWarmupPayload{Source: "cli"})
	}
	return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = int(info.Pending)
		stats.Active = int(info.Active)
		stats.Scheduled = int(info.Scheduled)
		stats.Retry = int(info.Retry)
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

type jobsFactory func(cfg *app.Config) (*JobsCLI, error)

func defaultJobsFactory(cfg *app.Config) (*JobsCLI, error) {
	return NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
}

func newJobsCommand(loadConfig func() (*app.Config, error), factory jobsFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Trigger and inspect background jobs",
	}

	withCLI := func(run func(cmd *cobra.Command, c *JobsCLI) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := factory(cfg)
			if err != nil {
				return err
			}
			defer c.Close()
			return run(cmd, c)
		}
	}

	trigger := &cobra.Command{
		Use:       "trigger <job>",
		Short:     "Enqueue a job now",
		Example:   "  odyssey jobs trigger status:sweep --kind invoices --kind expenses\n  odyssey jobs trigger reports:warmup",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskStatusSweep, jobs.TaskReportsWarmup},
	}
	kinds := trigger.Flags().StringSlice("kind", nil, "restrict a status sweep to these kinds (invoices, quotations, expenses, idempotency)")
	trigger.RunE = func(cmd *cobra.Command, args []string) error {
		return withCLI(func(cmd *cobra.Command, c *JobsCLI) error {
			info, err := c.Trigger(cmd.Context(), args[0], *kinds)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on queue %s\n", info.Type, info.ID, info.Queue)
			return nil
		})(cmd, args)
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show default queue counters",
		Args:  cobra.NoArgs,
		RunE: withCLI(func(cmd *cobra.Command, c *JobsCLI) error {
			s, err := c.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
				s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry)
			return nil
		}),
	}

	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		Args:  cobra.NoArgs,
	}
	size := scheduled.Flags().Int("size", 10, "page size")
	scheduled.RunE = withCLI(func(cmd *cobra.Command, c *JobsCLI) error {
		tasks, err := c.ListScheduled(cmd.Context(), *size)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tNEXT RUN")
		for _, t := range tasks {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.UTC().Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	})

	cmd.AddCommand(trigger, stats, scheduled)
	return cmd
}
