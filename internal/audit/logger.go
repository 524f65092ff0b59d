package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrAuditWriteFailure marks an event the store could not persist after retries.
// It is reported on the diagnostic logger only.
var ErrAuditWriteFailure = errors.New("audit: write failure")

// Writer persists events. Implementations only append.
type Writer interface {
	Append(ctx context.Context, event Event) error
}

// Config tunes the asynchronous sink.
type Config struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 50 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 2 * time.Second
	}
	return c
}

// Stats reports sink counters.
type Stats struct {
	Enqueued uint64
	Written  uint64
	Dropped  uint64
	Failed   uint64
}

// Logger is a best-effort, non-blocking sink for security events. Record never
// blocks and never fails; events are written by background workers.
type Logger struct {
	writer Writer
	cfg    Config
	logger *slog.Logger
	queue  chan Event
	done   chan struct{}
	clock  monotonicClock
	now    func() time.Time

	enqueued atomic.Uint64
	written  atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64

	// mu orders Record's enqueue against Close, so no event lands in the
	// queue after the workers were told to drain.
	mu        sync.RWMutex
	closed    bool
	started   atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLogger constructs a Logger. Call Start to launch the workers.
func NewLogger(writer Writer, cfg Config, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Logger{
		writer: writer,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// Start launches the drain workers. Workers stop when ctx is cancelled or
// Close is called.
func (l *Logger) Start(ctx context.Context) {
	if l == nil || !l.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < l.cfg.Workers; i++ {
		l.wg.Add(1)
		go l.run(ctx, i)
	}
}

// Record enqueues the event. A full queue or a closed logger drops it.
func (l *Logger) Record(event Event) {
	if l == nil {
		return
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.dropped.Add(1)
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.Timestamp = l.clock.next(l.now())
	event.Metadata = scrubMetadata(event.Metadata)
	select {
	case l.queue <- event:
		l.enqueued.Add(1)
	default:
		l.dropped.Add(1)
		l.logger.Warn("audit queue full, event dropped", slog.String("type", string(event.Type)))
	}
}

// Close stops accepting events and drains the queue until ctx expires.
// Events the workers did not write are counted as dropped.
func (l *Logger) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.done)
	})
	finished := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		l.dropLeftovers()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit: close: %w", ctx.Err())
	}
}

// dropLeftovers empties the queue once no worker is running.
func (l *Logger) dropLeftovers() {
	for {
		select {
		case event := <-l.queue:
			l.dropped.Add(1)
			l.logger.Warn("audit event dropped on close", slog.String("type", string(event.Type)))
		default:
			return
		}
	}
}

// Stats returns a snapshot of the sink counters.
func (l *Logger) Stats() Stats {
	if l == nil {
		return Stats{}
	}
	return Stats{
		Enqueued: l.enqueued.Load(),
		Written:  l.written.Load(),
		Dropped:  l.dropped.Load(),
		Failed:   l.failed.Load(),
	}
}

func (l *Logger) run(ctx context.Context, worker int) {
	defer l.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-l.queue:
			l.write(ctx, worker, event)
		case <-l.done:
			for {
				select {
				case event := <-l.queue:
					l.write(ctx, worker, event)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(ctx context.Context, worker int, event Event) {
	var err error
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				l.fail(worker, event, ctx.Err())
				return
			case <-time.After(time.Duration(attempt) * l.cfg.RetryBackoff):
			}
		}
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cfg.WriteTimeout)
		err = l.writer.Append(writeCtx, event)
		cancel()
		if err == nil {
			l.written.Add(1)
			return
		}
	}
	l.fail(worker, event, err)
}

func (l *Logger) fail(worker int, event Event, cause error) {
	l.failed.Add(1)
	l.dropped.Add(1)
	l.logger.Warn("audit write dropped",
		slog.Any("error", fmt.Errorf("%w: %v", ErrAuditWriteFailure, cause)),
		slog.String("type", string(event.Type)),
		slog.Int("worker", worker),
	)
}

// monotonicClock hands out non-decreasing timestamps without a mutex.
type monotonicClock struct {
	last atomic.Int64
}

func (c *monotonicClock) next(now time.Time) time.Time {
	candidate := now.UTC().UnixNano()
	for {
		prev := c.last.Load()
		if candidate <= prev {
			candidate = prev
		}
		if c.last.CompareAndSwap(prev, candidate) {
			return time.Unix(0, candidate).UTC()
		}
	}
}
