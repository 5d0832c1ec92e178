package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/inventra/inventra/jobs"
)

// Enqueuer submits tasks to the queue.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Inspector reads queue state.
type Inspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// JobsCLI wraps manual management helpers for background jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector Inspector
	now       func() time.Time
}

// NewJobsCLI builds the helpers on top of an asynq client and inspector.
func NewJobsCLI(client Enqueuer, inspector Inspector) *JobsCLI {
	return &JobsCLI{client: client, inspector: inspector, now: time.Now}
}

// Triggerable lists the jobs that may be enqueued by hand.
var Triggerable = []string{jobs.TaskLowStockDigest, jobs.TaskDashboardWarmup, jobs.TaskIdempotencyCleanup}

// Trigger enqueues a scheduled job immediately.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case jobs.TaskLowStockDigest, jobs.TaskDashboardWarmup, jobs.TaskIdempotencyCleanup:
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	task, err := jobs.NewScheduledTask(name, c.now().UTC())
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the default queue.
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
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

// ListScheduled returns scheduled task infos.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

// Run executes "trigger <job>", "stats" or "scheduled" and prints the outcome.
func (c *JobsCLI) Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: jobs trigger <%s> | stats | scheduled", strings.Join(Triggerable, "|"))
	}
	switch args[0] {
	case "trigger":
		if len(args) != 2 {
			return errors.New("usage: jobs trigger <job>")
		}
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "enqueued %s as %s\n", info.Type, info.ID)
		return err
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return err
	case "scheduled":
		tasks, err := c.ListScheduled(ctx, 20)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if _, err := fmt.Fprintf(out, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("jobs cli: unknown command %q", args[0])
	}
}

