package timer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// ─── Test Doubles ───────────────────────────────────────────────────────────

type received struct {
	Event Event
	Info  Info
	At    time.Time
}

// collector records listener calls.
type collector struct {
	mu     sync.Mutex
	events []received
}

func (c *collector) listen(_ context.Context, ev Event, info Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, received{Event: ev, Info: info, At: time.Now()})
}

func (c *collector) forTimer(id string) []received {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []received
	for _, r := range c.events {
		if r.Info.ID == id {
			out = append(out, r)
		}
	}
	return out
}

func (c *collector) count(id string, ev Event) int {
	n := 0
	for _, r := range c.forTimer(id) {
		if r.Event == ev {
			n++
		}
	}
	return n
}

// mockAnnouncer records spoken text.
type mockAnnouncer struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (a *mockAnnouncer) Speak(_ context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return a.err
}

func (a *mockAnnouncer) spoken() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.texts...)
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *collector) {
	t.Helper()
	col := &collector{}
	opts = append([]Option{WithListener(col.listen), WithTick(time.Millisecond)}, opts...)
	m := NewManager(opts...)
	t.Cleanup(func() { m.Close() })
	return m, col
}

func waitDone(t *testing.T, tm *Timer) {
	t.Helper()
	select {
	case <-tm.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("timer %s did not finish", tm.Name)
	}
}

// ─── Creation ───────────────────────────────────────────────────────────────

func TestQuickTimer_Bounds(t *testing.T) {
	ann := &mockAnnouncer{}
	m, _ := newTestManager(t, WithAnnouncer(ann), WithTick(time.Hour))
	ctx := context.Background()

	for _, minutes := range []int{0, 61, -1} {
		_, err := m.QuickTimer(ctx, minutes)
		if !errors.Is(err, ErrValidation) {
			t.Errorf("QuickTimer(%d) error = %v, want ErrValidation", minutes, err)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Value != int64(minutes) {
			t.Errorf("QuickTimer(%d) error = %#v, want *ValidationError", minutes, err)
		}
	}

	one, err := m.QuickTimer(ctx, 1)
	if err != nil {
		t.Fatalf("QuickTimer(1) error = %v", err)
	}
	sixty, err := m.QuickTimer(ctx, 60)
	if err != nil {
		t.Fatalf("QuickTimer(60) error = %v", err)
	}

	if one.ID == sixty.ID {
		t.Error("QuickTimer returned duplicate ids")
	}
	if one.Name != "QuickTimer_1min" || sixty.Name != "QuickTimer_60min" {
		t.Errorf("names = %q, %q", one.Name, sixty.Name)
	}
	if sixty.Duration != time.Hour {
		t.Errorf("Duration = %v, want 1h", sixty.Duration)
	}
	if !sixty.EndTime.Equal(sixty.StartTime.Add(time.Hour)) {
		t.Errorf("EndTime = %v, want StartTime+1h", sixty.EndTime)
	}

	want := []string{"Setting 1 minute timer", "Setting 60 minute timer"}
	if got := ann.spoken(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("announcements = %v, want %v", got, want)
	}
}

func TestQuickTimer_AnnouncementFailureKeepsTimer(t *testing.T) {
	ann := &mockAnnouncer{err: errors.New("speaker offline")}
	m, _ := newTestManager(t, WithAnnouncer(ann), WithTick(time.Hour))

	tm, err := m.QuickTimer(context.Background(), 5)
	if err != nil {
		t.Fatalf("QuickTimer() error = %v", err)
	}
	if _, err := m.GetTimer(tm.ID); err != nil {
		t.Errorf("GetTimer() error = %v", err)
	}
}

func TestCreateTimer(t *testing.T) {
	m, col := newTestManager(t, WithTick(time.Hour))

	tm, err := m.CreateTimer(context.Background(), 90*time.Second, "")
	if err != nil {
		t.Fatalf("CreateTimer() error = %v", err)
	}
	if tm.Name != "Timer_"+tm.ID[:8] {
		t.Errorf("Name = %q, want Timer_%s", tm.Name, tm.ID[:8])
	}

	info := tm.Info()
	if info.Duration != 90 || info.Remaining != 90 || info.Completed || info.Cancelled {
		t.Errorf("Info() = %+v", info)
	}
	if col.count(tm.ID, EventCreated) != 1 {
		t.Error("created event not delivered")
	}

	named, err := m.CreateTimer(context.Background(), time.Minute, "Tea")
	if err != nil {
		t.Fatalf("CreateTimer() error = %v", err)
	}
	if named.Name != "Tea" {
		t.Errorf("Name = %q, want Tea", named.Name)
	}
}

func TestCreateTimer_InvalidDuration(t *testing.T) {
	m, _ := newTestManager(t)
	for _, d := range []time.Duration{0, -time.Second, 400 * time.Millisecond} {
		if _, err := m.CreateTimer(context.Background(), d, ""); !errors.Is(err, ErrValidation) {
			t.Errorf("CreateTimer(%v) error = %v, want ErrValidation", d, err)
		}
	}
}

// ─── Countdown ──────────────────────────────────────────────────────────────

func TestCountdown_Checkpoints(t *testing.T) {
	const tick = 3 * time.Millisecond
	m, col := newTestManager(t, WithTick(tick))

	start := time.Now()
	tm, err := m.CreateTimer(context.Background(), 65*time.Second, "")
	if err != nil {
		t.Fatalf("CreateTimer() error = %v", err)
	}
	waitDone(t, tm)

	if n := col.count(tm.ID, EventOneMinute); n != 1 {
		t.Errorf("one_minute fired %d times, want 1", n)
	}
	if n := col.count(tm.ID, EventCompleted); n != 1 {
		t.Errorf("completed fired %d times, want 1", n)
	}
	if n := col.count(tm.ID, EventCancelled); n != 0 {
		t.Errorf("cancelled fired %d times, want 0", n)
	}

	var oneMinute, completed received
	for _, r := range col.forTimer(tm.ID) {
		switch r.Event {
		case EventOneMinute:
			oneMinute = r
		case EventCompleted:
			completed = r
		}
	}
	if oneMinute.Info.Remaining != 60 {
		t.Errorf("one_minute Remaining = %d, want 60", oneMinute.Info.Remaining)
	}
	if completed.Info.Remaining != 0 || !completed.Info.Completed {
		t.Errorf("completed Info = %+v", completed.Info)
	}

	// One minute remaining after 5 of 65 ticks, completion after all 65.
	if elapsed := oneMinute.At.Sub(start); elapsed < 5*tick {
		t.Errorf("one_minute after %v, want at least %v", elapsed, 5*tick)
	}
	if elapsed := completed.At.Sub(start); elapsed < 65*tick {
		t.Errorf("completed after %v, want at least %v", elapsed, 65*tick)
	}
	if !oneMinute.At.Before(completed.At) {
		t.Error("one_minute did not fire before completion")
	}
	if !tm.Completed() || tm.Cancelled() || tm.Remaining() != 0 {
		t.Errorf("timer state = completed %v cancelled %v remaining %v", tm.Completed(), tm.Cancelled(), tm.Remaining())
	}
}

func TestCountdown_ShortTimerSkipsOneMinute(t *testing.T) {
	m, col := newTestManager(t)

	tm, err := m.CreateTimer(context.Background(), 30*time.Second, "")
	if err != nil {
		t.Fatalf("CreateTimer() error = %v", err)
	}
	waitDone(t, tm)

	if n := col.count(tm.ID, EventOneMinute); n != 0 {
		t.Errorf("one_minute fired %d times for a 30s timer", n)
	}
	if n := col.count(tm.ID, EventCompleted); n != 1 {
		t.Errorf("completed fired %d times, want 1", n)
	}
}

func TestCountdown_ExactlyOneMinute(t *testing.T) {
	m, col := newTestManager(t)

	tm, err := m.QuickTimer(context.Background(), 1)
	if err != nil {
		t.Fatalf("QuickTimer() error = %v", err)
	}
	waitDone(t, tm)

	// Remaining starts at 60s; the checkpoint fires only when it is reached by counting down.
	if n := col.count(tm.ID, EventOneMinute); n != 0 {
		t.Errorf("one_minute fired %d times for a one minute timer", n)
	}
}

// ─── Cancellation ───────────────────────────────────────────────────────────

func TestCancelTimer(t *testing.T) {
	m, col := newTestManager(t, WithTick(time.Hour))

	tm, err := m.CreateTimer(context.Background(), 10*time.Minute, "Oven")
	if err != nil {
		t.Fatalf("CreateTimer() error = %v", err)
	}
	if err := m.CancelTimer(tm.ID); err != nil {
		t.Fatalf("CancelTimer() error = %v", err)
	}
	waitDone(t, tm)

	if !tm.Cancelled() || tm.Completed() {
		t.Errorf("Cancelled() = %v, Completed() = %v; want true, false", tm.Cancelled(), tm.Completed())
	}
	if col.count(tm.ID, EventCancelled) != 1 {
		t.Error("cancelled event not delivered exactly once")
	}
	if got := col.forTimer(tm.ID); got[len(got)-1].Info.CancelledBy != CancelledByRequest {
		t.Errorf("CancelledBy = %q, want %q", got[len(got)-1].Info.CancelledBy, CancelledByRequest)
	}
	if col.count(tm.ID, EventCompleted) != 0 {
		t.Error("completed event delivered for a cancelled timer")
	}
	if len(m.ActiveTimers()) != 0 {
		t.Errorf("ActiveTimers() = %+v, want none", m.ActiveTimers())
	}
	if len(m.Timers()) != 1 {
		t.Errorf("Timers() = %d entries, want cancelled timer retained", len(m.Timers()))
	}

	// Cancelling again is a no-op.
	if err := m.CancelTimer(tm.ID); err != nil {
		t.Errorf("second CancelTimer() error = %v", err)
	}
}

func TestCancelTimer_NotFound(t *testing.T) {
	m, _ := newTestManager(t)

	err := m.CancelTimer("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("CancelTimer() error = %v, want ErrNotFound", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.ID != "missing" {
		t.Errorf("error = %#v, want *NotFoundError{ID: missing}", err)
	}

	if _, err := m.GetTimer("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTimer() error = %v, want ErrNotFound", err)
	}
}

func TestCancelAll(t *testing.T) {
	m, col := newTestManager(t, WithTick(time.Hour))
	ctx := context.Background()

	var timers []*Timer
	for i := 1; i <= 3; i++ {
		tm, err := m.QuickTimer(ctx, i)
		if err != nil {
			t.Fatalf("QuickTimer(%d) error = %v", i, err)
		}
		timers = append(timers, tm)
	}

	if n := m.CancelAll(); n != 3 {
		t.Errorf("CancelAll() = %d, want 3", n)
	}
	for _, tm := range timers {
		waitDone(t, tm)
		if got := tm.Info().CancelledBy; got != CancelledByCancelAll {
			t.Errorf("%s CancelledBy = %q, want %q", tm.Name, got, CancelledByCancelAll)
		}
		if col.count(tm.ID, EventCancelled) != 1 {
			t.Errorf("%s cancelled events = %d, want 1", tm.Name, col.count(tm.ID, EventCancelled))
		}
	}
	if n := m.CancelAll(); n != 0 {
		t.Errorf("second CancelAll() = %d, want 0", n)
	}
}

func TestActiveTimers_OrderedByEndTime(t *testing.T) {
	m, _ := newTestManager(t, WithTick(time.Hour))
	ctx := context.Background()

	long, _ := m.QuickTimer(ctx, 30)
	short, _ := m.QuickTimer(ctx, 2)

	active := m.ActiveTimers()
	if len(active) != 2 {
		t.Fatalf("ActiveTimers() = %d entries, want 2", len(active))
	}
	if active[0].ID != short.ID || active[1].ID != long.ID {
		t.Errorf("order = %s, %s; want short first", active[0].Name, active[1].Name)
	}
}

// ─── Sweep ──────────────────────────────────────────────────────────────────

func TestSweep(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	done, err := m.CreateTimer(ctx, 2*time.Second, "done")
	if err != nil {
		t.Fatalf("CreateTimer() error = %v", err)
	}
	waitDone(t, done)

	running, err := m.CreateTimer(ctx, time.Hour, "running")
	if err != nil {
		t.Fatalf("CreateTimer() error = %v", err)
	}

	// Inside the retention window nothing is removed.
	if n := m.Sweep(); n != 0 {
		t.Errorf("Sweep() = %d inside retention, want 0", n)
	}

	// Well past the terminated timer's end time, but the running one stays.
	m.now = func() time.Time { return done.EndTime.Add(DefaultRetention + time.Minute) }
	if n := m.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if _, err := m.GetTimer(done.ID); !errors.Is(err, ErrNotFound) {
		t.Error("terminated timer was not swept")
	}
	if _, err := m.GetTimer(running.ID); err != nil {
		t.Error("running timer was swept")
	}
}

func TestRun_SweepsPeriodically(t *testing.T) {
	m, _ := newTestManager(t, WithSweepInterval(5*time.Millisecond), WithRetention(time.Minute))

	tm, err := m.CreateTimer(context.Background(), time.Second, "")
	if err != nil {
		t.Fatalf("CreateTimer() error = %v", err)
	}
	waitDone(t, tm)
	m.now = func() time.Time { return tm.EndTime.Add(2 * time.Minute) }

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(m.Timers()) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-errCh; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if len(m.Timers()) != 0 {
		t.Errorf("Timers() = %+v, want swept", m.Timers())
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

func TestClose_CancelsRunningTimers(t *testing.T) {
	col := &collector{}
	m := NewManager(WithListener(col.listen), WithTick(time.Hour))

	tm, err := m.QuickTimer(context.Background(), 10)
	if err != nil {
		t.Fatalf("QuickTimer() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case <-tm.Done():
	default:
		t.Fatal("Close() returned before the countdown exited")
	}
	if !tm.Cancelled() {
		t.Error("Cancelled() = false after Close")
	}
	if got := col.count(tm.ID, EventCancelled); got != 0 {
		t.Errorf("cancelled events on Close = %d, want 0", got)
	}
	if _, err := m.QuickTimer(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Errorf("QuickTimer() after Close error = %v, want ErrClosed", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestClose_KeepsEarlierCancellations(t *testing.T) {
	col := &collector{}
	m := NewManager(WithListener(col.listen), WithTick(time.Hour))

	cancelled, _ := m.CreateTimer(context.Background(), time.Minute, "pasta")
	running, _ := m.CreateTimer(context.Background(), time.Minute, "eggs")

	if err := m.CancelTimer(cancelled.ID); err != nil {
		t.Fatalf("CancelTimer() error = %v", err)
	}
	waitDone(t, cancelled)
	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := col.count(cancelled.ID, EventCancelled); got != 1 {
		t.Errorf("cancelled events for user cancel = %d, want 1", got)
	}
	if got := col.count(running.ID, EventCancelled); got != 0 {
		t.Errorf("cancelled events for shutdown = %d, want 0", got)
	}
}

func TestListenerContextOutlivesCancellation(t *testing.T) {
	var (
		mu     sync.Mutex
		ctxErr error
	)
	m := NewManager(WithTick(time.Hour), WithListener(func(ctx context.Context, ev Event, _ Info) {
		if ev == EventCancelled {
			mu.Lock()
			ctxErr = ctx.Err()
			mu.Unlock()
		}
	}))
	defer m.Close()

	tm, _ := m.CreateTimer(context.Background(), time.Minute, "")
	_ = m.CancelTimer(tm.ID)
	waitDone(t, tm)

	mu.Lock()
	defer mu.Unlock()
	if ctxErr != nil {
		t.Errorf("listener ctx.Err() = %v, want nil so side effects can still run", ctxErr)
	}
}
