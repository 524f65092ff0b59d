package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hibiken/asynq"

	"github.com/sabha-admin/sabha/jobs"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// TriggerArgs carries the flag values a trigger may need.
type TriggerArgs struct {
	From      string
	To        string
	Types     []string
	Recipient string
}

type trigger struct {
	queue    string
	maxRetry int
	build    func(TriggerArgs) (*asynq.Task, error)
}

// TestMailTask names the operator smoke test for the mail queue.
const TestMailTask = "mail:test"

var triggers = map[string]trigger{
	jobs.TaskAuditExport: {
		queue:    jobs.QueueDefault,
		maxRetry: 3,
		build: func(a TriggerArgs) (*asynq.Task, error) {
			return jobs.NewAuditExportTask(jobs.AuditExportPayload{
				From: a.From, To: a.To, Types: a.Types, Recipient: a.Recipient,
			})
		},
	},
	TestMailTask: {
		queue:    jobs.QueueMail,
		maxRetry: 1,
		build: func(a TriggerArgs) (*asynq.Task, error) {
			return jobs.NewSendEmailTask(jobs.SendEmailPayload{
				To:      a.Recipient,
				Subject: "Sabha mail test",
				Body:    "Mail delivery from the sabha worker is working.",
			})
		},
	},
}

// TriggerNames lists the jobs accepted by Trigger.
func TriggerNames() []string {
	names := make([]string, 0, len(triggers))
	for name := range triggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// JobsCLI talks to the job queue on behalf of operator commands.
type JobsCLI struct {
	client    taskEnqueuer
	inspector queueInspector
}

// NewJobsCLI dials the job queue Redis.
func NewJobsCLI(opts asynq.RedisClientOpt) (*JobsCLI, error) {
	if opts.Addr == "" {
		return nil, errors.New("jobs cli: redis address missing")
	}
	return &JobsCLI{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}, nil
}

// Close releases the client and inspector.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// Trigger enqueues the named job on its own queue.
func (c *JobsCLI) Trigger(ctx context.Context, name string, args TriggerArgs) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	spec, ok := triggers[name]
	if !ok {
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	task, err := spec.build(args)
	if err != nil {
		return nil, fmt.Errorf("jobs cli: build %s: %w", name, err)
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(spec.queue), asynq.MaxRetry(spec.maxRetry))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
}

func knownQueue(queue string) error {
	if queue != jobs.QueueDefault && queue != jobs.QueueMail {
		return fmt.Errorf("unknown queue %s", queue)
	}
	return nil
}

// InspectQueue reports the counters of one queue. A queue that has never
// received a task reports zeros.
func (c *JobsCLI) InspectQueue(ctx context.Context, queue string) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	if err := knownQueue(queue); err != nil {
		return QueueStats{}, err
	}
	info, err := c.inspector.GetQueueInfo(queue)
	switch {
	case errors.Is(err, asynq.ErrQueueNotFound), err == nil && info == nil:
		return QueueStats{Queue: queue}, nil
	case err != nil:
		return QueueStats{}, err
	}
	return QueueStats{
		Queue:     queue,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
	}, nil
}

// ListScheduled returns the first page of scheduled tasks on queue.
func (c *JobsCLI) ListScheduled(ctx context.Context, queue string, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if err := knownQueue(queue); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 10
	}
	tasks, err := c.inspector.ListScheduledTasks(queue, asynq.PageSize(size), asynq.Page(1))
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return nil, nil
	}
	return tasks, err
}
