package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabha-admin/sabha/jobs"
)

type stubEnqueuer struct {
	tasks  []*asynq.Task
	closed bool
}

func (s *stubEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (s *stubEnqueuer) Close() error {
	s.closed = true
	return nil
}

type stubInspector struct {
	info      *asynq.QueueInfo
	scheduled []*asynq.TaskInfo
	err       error
}

func (s *stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func (s *stubInspector) ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, s.err
}

func (s *stubInspector) Close() error { return nil }

func execute(t *testing.T, helper *JobsCLI, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(func() (*JobsCLI, error) { return helper, nil }, &out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTriggerAuditExportEnqueuesPayload(t *testing.T) {
	enq := &stubEnqueuer{}
	helper := &JobsCLI{client: enq, inspector: &stubInspector{}}

	out, err := execute(t, helper, "jobs", "trigger", jobs.TaskAuditExport,
		"--from", "2026-03-01", "--to", "2026-03-02", "--recipient", "ops@example.org", "--type", "failed_login")
	require.NoError(t, err)
	assert.Contains(t, out, "enqueued audit:export id=t-1")
	require.Len(t, enq.tasks, 1)

	var payload jobs.AuditExportPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, "2026-03-01", payload.From)
	assert.Equal(t, "2026-03-02", payload.To)
	assert.Equal(t, []string{"failed_login"}, payload.Types)
	assert.Equal(t, "ops@example.org", payload.Recipient)
	assert.True(t, enq.closed)
}

func TestTriggerRequiresRecipient(t *testing.T) {
	called := false
	var out bytes.Buffer
	root := NewRootCommand(func() (*JobsCLI, error) {
		called = true
		return nil, errors.New("unexpected")
	}, &out)
	root.SetArgs([]string{"jobs", "trigger", jobs.TaskAuditExport})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--recipient")
	assert.False(t, called)
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	helper := &JobsCLI{client: &stubEnqueuer{}, inspector: &stubInspector{}}
	_, err := execute(t, helper, "jobs", "trigger", "nope", "--recipient", "ops@example.org")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported job nope")
}

func TestStatsPrintsQueueCounters(t *testing.T) {
	helper := &JobsCLI{client: &stubEnqueuer{}, inspector: &stubInspector{
		info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 3, Active: 1, Retry: 2},
	}}
	out, err := execute(t, helper, "jobs", "stats")
	require.NoError(t, err)
	assert.Equal(t, "queue=default pending=3 active=1 scheduled=0 retry=2 archived=0\n", out)
}

func TestStatsMailQueueNotCreatedYet(t *testing.T) {
	helper := &JobsCLI{client: &stubEnqueuer{}, inspector: &stubInspector{err: asynq.ErrQueueNotFound}}
	out, err := execute(t, helper, "jobs", "stats", "--queue", "mail")
	require.NoError(t, err)
	assert.Equal(t, "queue=mail pending=0 active=0 scheduled=0 retry=0 archived=0\n", out)
}

func TestStatsRejectsUnknownQueue(t *testing.T) {
	helper := &JobsCLI{client: &stubEnqueuer{}, inspector: &stubInspector{}}
	_, err := execute(t, helper, "jobs", "stats", "--queue", "critical")
	assert.EqualError(t, err, "unknown queue critical")
}

func TestScheduledListsTasks(t *testing.T) {
	at := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	helper := &JobsCLI{client: &stubEnqueuer{}, inspector: &stubInspector{
		scheduled: []*asynq.TaskInfo{{ID: "s-1", Type: jobs.TaskAuditExport, NextProcessAt: at}},
	}}
	out, err := execute(t, helper, "jobs", "scheduled")
	require.NoError(t, err)
	assert.Equal(t, "s-1\taudit:export\t2026-03-02 02:00:00\n", out)
}

func TestInspectQueueWithoutInspector(t *testing.T) {
	var helper *JobsCLI
	_, err := helper.InspectQueue(context.Background(), jobs.QueueDefault)
	assert.Error(t, err)
}

func TestTriggerMailTestUsesMailQueue(t *testing.T) {
	enq := &stubEnqueuer{}
	helper := &JobsCLI{client: enq, inspector: &stubInspector{}}

	_, err := execute(t, helper, "jobs", "trigger", TestMailTask, "--recipient", "ops@example.org")
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, jobs.TaskTypeSendEmail, enq.tasks[0].Type())

	var payload jobs.SendEmailPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, "ops@example.org", payload.To)
}

func TestTriggerMailTestRejectsBadAddress(t *testing.T) {
	enq := &stubEnqueuer{}
	helper := &JobsCLI{client: enq, inspector: &stubInspector{}}

	_, err := execute(t, helper, "jobs", "trigger", TestMailTask, "--recipient", "not-an-address")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build mail:test")
	assert.Empty(t, enq.tasks)
}

func TestScheduledMissingQueueIsEmpty(t *testing.T) {
	helper := &JobsCLI{client: &stubEnqueuer{}, inspector: &stubInspector{err: asynq.ErrQueueNotFound}}
	out, err := execute(t, helper, "jobs", "scheduled", "--queue", "mail")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestTriggerNamesSorted(t *testing.T) {
	assert.Equal(t, []string{jobs.TaskAuditExport, TestMailTask}, TriggerNames())
}

type failingCloser struct{ stubInspector }

func (failingCloser) Close() error { return errors.New("inspector close") }

func TestCloseJoinsErrors(t *testing.T) {
	enq := &stubEnqueuer{}
	helper := &JobsCLI{client: enq, inspector: &failingCloser{}}
	err := helper.Close()
	assert.EqualError(t, err, "inspector close")
	assert.True(t, enq.closed)
}
