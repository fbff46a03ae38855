package audit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/iroh-home/iroh-core/internal/dtmf"
)

// DefaultQueueSize bounds entries waiting to be written.
const DefaultQueueSize = 256

const writeTimeout = 5 * time.Second

// Logger defines the logging interface used by the Recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder is a dtmf.Observer that writes one entry per matched handler.
//
// Observer callbacks run inside the engine, so HandlerDone only queues the
// entry; Run performs the writes. When the queue is full the entry is
// dropped and counted.
type Recorder struct {
	repo    Repository
	logger  Logger
	queue   chan Entry
	dropped atomic.Uint64
	now     func() time.Time
}

// NewRecorder creates a recorder writing to repo. queueSize <= 0 uses
// DefaultQueueSize.
func NewRecorder(repo Repository, logger Logger, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan Entry, queueSize),
		now:    time.Now,
	}
}

// Transition implements dtmf.Observer. Transitions are not audited.
func (r *Recorder) Transition(dtmf.TransitionEvent) {}

// HandlerDone implements dtmf.Observer.
func (r *Recorder) HandlerDone(ev dtmf.HandlerEvent) {
	entry := Entry{
		Action:     ActionCommand,
		State:      ev.State,
		Handler:    ev.Handler,
		Pattern:    ev.Pattern,
		Input:      ev.Raw,
		Outcome:    ev.Outcome(),
		DurationMS: ev.Duration.Milliseconds(),
		CreatedAt:  r.now().UTC(),
	}
	if ev.Err != nil {
		entry.Error = ev.Err.Error()
	}
	if ev.Transform != "" || ev.Value != nil || ev.OnEnter {
		entry.Details = map[string]any{}
		if ev.OnEnter {
			entry.Details["on_enter"] = true
		}
		if ev.Transform != "" {
			entry.Details["transform"] = ev.Transform
		}
		if ev.Value != nil {
			entry.Details["value"] = fmt.Sprint(ev.Value)
		}
	}

	select {
	case r.queue <- entry:
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("audit queue full, entry dropped", "handler", ev.Handler, "dropped_total", n)
	}
}

// Dropped returns how many entries were discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Run writes queued entries until ctx is cancelled, then drains what is
// already queued. It always returns nil.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case entry := <-r.queue:
			r.write(ctx, entry)
		case <-ctx.Done():
			for {
				select {
				case entry := <-r.queue:
					r.write(ctx, entry)
				default:
					return nil
				}
			}
		}
	}
}

// write outlives cancellation of ctx so queued entries survive shutdown.
func (r *Recorder) write(ctx context.Context, entry Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, &entry); err != nil {
		r.logger.Error("failed to write audit entry", "handler", entry.Handler, "error", err)
	}
}
