package timer

import (
	"context"
	"sync"
	"time"
)

// Event identifies a point in a timer's lifecycle.
type Event string

// Lifecycle events delivered to listeners.
const (
	EventCreated   Event = "created"
	EventOneMinute Event = "one_minute"
	EventCompleted Event = "completed"
	EventCancelled Event = "cancelled"
)

// OneMinute is the remaining time at which EventOneMinute fires.
const OneMinute = time.Minute

// Cancellation sources reported in Info.CancelledBy. A timer stopped by
// Manager.Close has none.
const (
	CancelledByRequest   = "request"
	CancelledByCancelAll = "cancel_all"
)

// Timer is a single countdown. Its countdown goroutine is the only writer of
// the remaining time and the terminal flags; readers go through the accessors.
type Timer struct {
	ID        string
	Name      string
	Duration  time.Duration
	StartTime time.Time
	EndTime   time.Time

	mu          sync.RWMutex
	remaining   time.Duration
	completed   bool
	cancelled   bool
	cancelledBy string

	cancel context.CancelFunc
	done   chan struct{}
}

// Info is a point-in-time copy of a timer. Durations are whole seconds.
type Info struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Duration  int64     `json:"duration"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Remaining int64     `json:"remaining"`
	Completed bool      `json:"completed"`
	Cancelled bool      `json:"cancelled"`

	CancelledBy string `json:"cancelled_by,omitempty"`
}

// Info returns a snapshot of the timer.
func (t *Timer) Info() Info {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Info{
		ID:        t.ID,
		Name:      t.Name,
		Duration:  int64(t.Duration / time.Second),
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
		Remaining: int64(t.remaining / time.Second),
		Completed: t.completed,
		Cancelled: t.cancelled,

		CancelledBy: t.cancelledBy,
	}
}

// Remaining returns the time left on the countdown.
func (t *Timer) Remaining() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.remaining
}

// Completed reports whether the countdown reached zero.
func (t *Timer) Completed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.completed
}

// Cancelled reports whether the countdown was cancelled.
func (t *Timer) Cancelled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancelled
}

// Terminated reports whether the timer has completed or been cancelled.
func (t *Timer) Terminated() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.completed || t.cancelled
}

// stop cancels the countdown on behalf of a caller. A countdown that ends
// without stop having run was shut down with the manager.
func (t *Timer) stop(by string) {
	t.mu.Lock()
	t.cancelledBy = by
	t.mu.Unlock()
	t.cancel()
}

func (t *Timer) stopRequested() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cancelledBy != ""
}

// Done is closed when the countdown goroutine exits.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}

// run counts down one second per tick until zero or cancellation.
func (t *Timer) run(ctx context.Context, tick time.Duration, notify func(Event, Info)) {
	defer close(t.done)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.mu.Lock()
			t.cancelled = true
			t.mu.Unlock()
			notify(EventCancelled, t.Info())
			return

		case <-ticker.C:
			t.mu.Lock()
			t.remaining -= time.Second
			if t.remaining < 0 {
				t.remaining = 0
			}
			remaining := t.remaining
			if remaining == 0 {
				t.completed = true
			}
			t.mu.Unlock()

			switch remaining {
			case OneMinute:
				notify(EventOneMinute, t.Info())
			case 0:
				notify(EventCompleted, t.Info())
				return
			}
		}
	}
}
