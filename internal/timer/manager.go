package timer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Defaults for the countdown and the retention sweep.
const (
	DefaultTick          = time.Second
	DefaultSweepInterval = 5 * time.Minute
	DefaultRetention     = time.Hour

	// MaxQuickMinutes bounds QuickTimer.
	MaxQuickMinutes = 60
)

// Listener receives timer lifecycle events. It is called from the timer's
// countdown goroutine, so a slow listener delays that timer's next tick.
type Listener func(ctx context.Context, event Event, info Info)

// Announcer speaks a confirmation to the caller.
type Announcer interface {
	Speak(ctx context.Context, text string) error
}

// Logger defines the logging interface used by the Manager.
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

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithAnnouncer sets the speech output used by QuickTimer.
func WithAnnouncer(a Announcer) Option {
	return func(m *Manager) { m.announcer = a }
}

// WithListener adds a lifecycle listener. Listeners run in registration order.
func WithListener(l Listener) Option {
	return func(m *Manager) {
		if l != nil {
			m.listeners = append(m.listeners, l)
		}
	}
}

// WithTick sets the wall-clock interval of one countdown second.
func WithTick(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.tick = d
		}
	}
}

// WithSweepInterval sets how often Run purges terminated timers.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

// WithRetention sets how long terminated timers are kept after their end time.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.retention = d
		}
	}
}

// Manager owns every countdown and the retention sweep.
//
// Each timer runs in its own goroutine and is cancelled only through
// CancelTimer, CancelAll or Close.
type Manager struct {
	mu     sync.RWMutex
	timers map[string]*Timer
	closed bool
	wg     sync.WaitGroup

	base       context.Context
	cancelBase context.CancelFunc

	listeners     []Listener
	announcer     Announcer
	logger        Logger
	tick          time.Duration
	sweepInterval time.Duration
	retention     time.Duration
	now           func() time.Time
}

// NewManager creates a timer manager.
func NewManager(opts ...Option) *Manager {
	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		timers:        make(map[string]*Timer),
		base:          base,
		cancelBase:    cancel,
		logger:        noopLogger{},
		tick:          DefaultTick,
		sweepInterval: DefaultSweepInterval,
		retention:     DefaultRetention,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateTimer starts a new countdown.
//
// It performs the following steps:
//  1. Rounds d to whole seconds and rejects anything under one second
//  2. Assigns a UUID and, for a blank name, Timer_<first 8 characters of it>
//  3. Registers the timer and delivers EventCreated
//  4. Starts the countdown goroutine and returns without waiting
//
// Parameters:
//   - ctx: Used only to deliver EventCreated; the countdown outlives it
//   - d: Countdown length
//   - name: Display name, spoken on completion
//
// Returns:
//   - *Timer: The running timer
//   - error: *ValidationError for a short duration, or ErrClosed
//
// Thread Safety:
//   - Safe for concurrent use; each timer owns its goroutine.
func (m *Manager) CreateTimer(ctx context.Context, d time.Duration, name string) (*Timer, error) {
	// Validate duration
	d = d.Round(time.Second)
	if d < time.Second {
		return nil, &ValidationError{Field: "duration", Value: int64(d / time.Second), Reason: "must be at least one second"}
	}

	// Identity and default name
	id := uuid.NewString()
	if name == "" {
		name = "Timer_" + id[:8]
	}

	start := m.now()
	t := &Timer{
		ID:        id,
		Name:      name,
		Duration:  d,
		StartTime: start,
		EndTime:   start.Add(d),
		remaining: d,
		done:      make(chan struct{}),
	}

	// Register under the manager lock so Close cannot miss it
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	runCtx, cancel := context.WithCancel(m.base)
	t.cancel = cancel
	m.timers[id] = t
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("timer created", "timer_id", id, "name", name, "duration_s", int64(d/time.Second))
	m.notify(ctx, EventCreated, t.Info())

	// Listener side effects must survive the cancellation they report
	notifyCtx := context.WithoutCancel(runCtx)
	go func() {
		defer m.wg.Done()
		defer cancel()
		t.run(runCtx, m.tick, func(ev Event, info Info) {
			if ev == EventCancelled && !t.stopRequested() {
				m.logger.Debug("timer stopped by shutdown", "timer_id", info.ID, "name", info.Name)
				return
			}
			m.notify(notifyCtx, ev, info)
		})
	}()
	return t, nil
}

// QuickTimer starts a one-digit-dial timer and announces it.
//
// The timer is named QuickTimer_<n>min. The spoken confirmation is
// "Setting <n> minute timer"; if speaking fails the error is logged and the
// timer keeps running.
//
// Parameters:
//   - ctx: Bounds the announcement and the EventCreated delivery
//   - minutes: Countdown length, 1 to MaxQuickMinutes
//
// Returns:
//   - *Timer: The running timer
//   - error: *ValidationError when minutes is out of range, or ErrClosed
func (m *Manager) QuickTimer(ctx context.Context, minutes int) (*Timer, error) {
	if minutes < 1 || minutes > MaxQuickMinutes {
		return nil, &ValidationError{
			Field:  "minutes",
			Value:  int64(minutes),
			Reason: fmt.Sprintf("quick timer must be between 1 and %d minutes", MaxQuickMinutes),
		}
	}

	t, err := m.CreateTimer(ctx, time.Duration(minutes)*time.Minute, fmt.Sprintf("QuickTimer_%dmin", minutes))
	if err != nil {
		return nil, err
	}

	if m.announcer != nil {
		if err := m.announcer.Speak(ctx, fmt.Sprintf("Setting %d minute timer", minutes)); err != nil {
			m.logger.Warn("quick timer announcement failed", "timer_id", t.ID, "error", err)
		}
	}
	return t, nil
}

// CancelTimer requests cooperative cancellation of one timer.
//
// The request returns immediately. EventCancelled is delivered later from
// the countdown goroutine; wait on Timer.Done to observe it.
//
// Parameters:
//   - id: Timer UUID
//
// Returns:
//   - error: *NotFoundError for an unknown id; nil for a timer that has
//     already terminated (no-op)
func (m *Manager) CancelTimer(id string) error {
	m.mu.RLock()
	t, ok := m.timers[id]
	m.mu.RUnlock()
	if !ok {
		return &NotFoundError{ID: id}
	}

	if t.Terminated() {
		m.logger.Debug("timer already terminated", "timer_id", id)
		return nil
	}
	t.stop(CancelledByRequest)
	m.logger.Info("timer cancellation requested", "timer_id", id, "name", t.Name)
	return nil
}

// CancelAll cancels every running timer and returns how many were running.
// Their cancelled events carry CancelledBy = CancelledByCancelAll.
func (m *Manager) CancelAll() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, t := range m.timers {
		if t.Terminated() {
			continue
		}
		t.stop(CancelledByCancelAll)
		n++
	}
	if n > 0 {
		m.logger.Info("cancelled all timers", "count", n)
	}
	return n
}

// GetTimer returns the timer with the given id.
func (m *Manager) GetTimer(id string) (*Timer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.timers[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return t, nil
}

// ActiveTimers returns running timers ordered by end time.
func (m *Manager) ActiveTimers() []Info {
	return m.list(func(t *Timer) bool { return !t.Terminated() })
}

// Timers returns every retained timer ordered by end time.
func (m *Manager) Timers() []Info {
	return m.list(func(*Timer) bool { return true })
}

func (m *Manager) list(keep func(*Timer) bool) []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.timers))
	for _, t := range m.timers {
		if keep(t) {
			out = append(out, t.Info())
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].EndTime.Equal(out[j].EndTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].EndTime.Before(out[j].EndTime)
	})
	return out
}

// Sweep removes terminated timers whose end time is older than the
// retention window and returns how many were removed.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, t := range m.timers {
		if t.Terminated() && t.EndTime.Before(cutoff) {
			delete(m.timers, id)
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("swept terminated timers", "count", removed)
	}
	return removed
}

// Run sweeps every sweep interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	m.logger.Info("timer sweep started",
		"interval", m.sweepInterval.String(),
		"retention", m.retention.String(),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close stops every countdown and waits for the goroutines to exit.
//
// Countdowns stopped this way are marked cancelled but listeners are not
// told: a shutdown is not a user cancellation and must not be recorded,
// published or announced as one.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancelBase()
	m.wg.Wait()
	m.logger.Info("timer manager closed")
	return nil
}

func (m *Manager) notify(ctx context.Context, ev Event, info Info) {
	switch ev {
	case EventCompleted:
		m.logger.Info("timer completed", "timer_id", info.ID, "name", info.Name)
	case EventCancelled:
		m.logger.Info("timer cancelled", "timer_id", info.ID, "name", info.Name)
	case EventOneMinute:
		m.logger.Debug("timer has one minute remaining", "timer_id", info.ID)
	}

	for _, l := range m.listeners {
		l(ctx, ev, info)
	}
}
