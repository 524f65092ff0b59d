package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sabha-admin/sabha/internal/audit"
	jobmetrics "github.com/sabha-admin/sabha/internal/jobs"
)

// TaskAuditExport exports security events and mails them to a recipient.
const TaskAuditExport = "audit:export"

const dateLayout = "2006-01-02"

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AuditExportPayload selects the events to export. Empty From and To select
// the previous UTC day at run time.
type AuditExportPayload struct {
	From      string   `json:"from,omitempty"`
	To        string   `json:"to,omitempty"`
	Types     []string `json:"types,omitempty"`
	Recipient string   `json:"recipient"`
}

// NewAuditExportTask constructs an audit export task.
func NewAuditExportTask(payload AuditExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditExport, data), nil
}

// AuditSource reads unpaged timeline rows.
type AuditSource interface {
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// CSVWriter renders rows as CSV.
type CSVWriter interface {
	WriteCSV(rows []audit.TimelineRow) ([]byte, error)
}

// MailEnqueuer queues outgoing mail.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// AuditExportJob builds the CSV export and hands it to the mail queue.
type AuditExportJob struct {
	Audit   AuditSource
	CSV     CSVWriter
	Mail    MailEnqueuer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAuditExportJob wires dependencies for the export handler.
func NewAuditExportJob(source AuditSource, csv CSVWriter, mail MailEnqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditExportJob {
	return &AuditExportJob{
		Audit:   source,
		CSV:     csv,
		Mail:    mail,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes audit export tasks.
func (j *AuditExportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Audit == nil || j.CSV == nil || j.Mail == nil {
		return errors.New("audit export: handler not configured")
	}
	var payload AuditExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if strings.TrimSpace(payload.Recipient) == "" {
		return fmt.Errorf("audit export: recipient missing: %w", asynq.SkipRetry)
	}
	filters, err := j.filters(payload)
	if err != nil {
		return fmt.Errorf("audit export: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskAuditExport)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("from", filters.From.Format(dateLayout)),
		slog.String("to", filters.To.Add(-time.Nanosecond).Format(dateLayout)),
	)
	rows, err := j.Audit.Export(ctx, filters)
	if err != nil {
		resultErr = err
		logger.Error("load security events", slog.Any("error", err))
		return resultErr
	}
	csv, err := j.CSV.WriteCSV(rows)
	if err != nil {
		resultErr = err
		return resultErr
	}
	mail := SendEmailPayload{
		To:      payload.Recipient,
		Subject: fmt.Sprintf("Security events %s to %s", filters.From.Format(dateLayout), filters.To.Add(-time.Nanosecond).Format(dateLayout)),
		Body:    Summarize(rows) + "\n" + string(csv),
	}
	if _, err := j.Mail.EnqueueSendEmail(ctx, mail); err != nil {
		resultErr = err
		logger.Error("enqueue export mail", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddExportedRows(TaskAuditExport, len(rows))
	logger.Info("audit export queued", slog.Int("rows", len(rows)))
	return resultErr
}

func (j *AuditExportJob) filters(payload AuditExportPayload) (audit.TimelineFilters, error) {
	var filters audit.TimelineFilters
	if payload.From == "" && payload.To == "" {
		today := j.now().Truncate(24 * time.Hour)
		filters.From = today.AddDate(0, 0, -1)
		filters.To = today
	} else {
		from, err := time.Parse(dateLayout, payload.From)
		if err != nil {
			return filters, fmt.Errorf("invalid from date %q", payload.From)
		}
		to, err := time.Parse(dateLayout, payload.To)
		if err != nil {
			return filters, fmt.Errorf("invalid to date %q", payload.To)
		}
		if to.Before(from) {
			return filters, fmt.Errorf("to date before from date")
		}
		filters.From = from
		filters.To = to.Add(24 * time.Hour)
	}
	for _, raw := range payload.Types {
		typ := audit.EventType(strings.TrimSpace(raw))
		if !typ.Valid() {
			return filters, fmt.Errorf("unknown event type %q", raw)
		}
		filters.Types = append(filters.Types, typ)
	}
	return filters, nil
}

// Summarize counts rows per event type, one "type: n" line each.
func Summarize(rows []audit.TimelineRow) string {
	counts := make(map[audit.EventType]int)
	for _, row := range rows {
		counts[row.Type]++
	}
	types := make([]string, 0, len(counts))
	for typ := range counts {
		types = append(types, string(typ))
	}
	sort.Strings(types)
	var b strings.Builder
	fmt.Fprintf(&b, "%d security events\n", len(rows))
	for _, typ := range types {
		fmt.Fprintf(&b, "%s: %d\n", typ, counts[audit.EventType(typ)])
	}
	return b.String()
}

func (j *AuditExportJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AuditExportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *AuditExportJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
