package dtmf

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Engine interprets a dial-pad symbol stream against a loaded state table.
//
// All event processing, transitions and timeout expiries are serialised by a
// single lock, so handlers run one at a time in arrival order. Handlers and
// observers are called with that lock held and must not call back into the
// engine; Snapshot is the exception and is always safe.
//
// The engine owns exactly one dwell timer. Every transition cancels the
// outstanding timer before arming the next one, and a timer that fires after
// being superseded is recognised by its generation and ignored.
type Engine struct {
	mu sync.Mutex

	caps     *Capabilities
	states   map[string]*compiledState
	strict   bool
	logger   Logger
	observer Observer
	onError  func(ctx context.Context, err *HandlerExecutionError)
	now      func() time.Time

	// Machine state, guarded by mu.
	runCtx    context.Context
	current   *compiledState
	buffer    []InputEvent
	dwell     *dwellTimer
	gen       uint64
	enteredAt time.Time
	closed    bool

	pending atomic.Int32
	view    atomic.Pointer[Snapshot]
}

// dwellTimer is the engine's single outstanding timeout.
type dwellTimer struct {
	gen   uint64
	timer *time.Timer
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver registers an observer for transitions and handler results.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithHandlerErrorHook sets a callback for failed handlers, typically an
// audio apology. It runs after the failure has been logged.
func WithHandlerErrorHook(fn func(ctx context.Context, err *HandlerExecutionError)) Option {
	return func(e *Engine) { e.onError = fn }
}

// WithStrictBindings makes Load reject tables that reference unbound names.
func WithStrictBindings(strict bool) Option {
	return func(e *Engine) { e.strict = strict }
}

// NewEngine creates an engine bound to a copy of caps.
func NewEngine(caps *Capabilities, opts ...Option) *Engine {
	e := &Engine{
		caps:   caps.clone(),
		logger: noopLogger{},
		now:    time.Now,
		runCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.publishLocked()
	return e
}

// RegisterHandler binds a handler name after construction.
// It is serialised with event processing.
func (e *Engine) RegisterHandler(name string, fn HandlerFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.caps.Handler(name, fn)
	e.logger.Debug("registered handler", "handler", name)
}

// RegisterTransformer binds a transform name after construction.
// It is serialised with event processing.
func (e *Engine) RegisterTransformer(name string, fn TransformFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.caps.Transformer(name, fn)
	e.logger.Debug("registered transformer", "transform", name)
}

// Load validates and installs a state table.
//
// It performs the following steps:
//  1. Compiles every state, collecting all problems rather than the first
//  2. Logs references to unbound handlers or transforms (errors in strict mode)
//  3. Cancels any pending dwell timeout and clears the buffer
//  4. Installs the new table; the engine is stopped until Start runs again
//
// Parameters:
//   - defs: State definitions, usually from ParseTable or LoadFile
//
// Returns:
//   - error: *ConfigurationError listing every problem, or ErrClosed
//
// Thread Safety:
//   - Safe to call while symbols are arriving; it waits for the engine lock.
func (e *Engine) Load(defs []StateDefinition) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	// Compile and validate the whole table before touching live state
	states, warnings, err := compile(defs, e.caps, e.strict)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		e.logger.Warn("command table references unbound name", "detail", w)
	}

	// Swap tables; nothing is active until Start
	e.cancelDwellLocked()
	e.states = states
	e.current = nil
	e.buffer = nil
	e.publishLocked()

	e.logger.Info("command table loaded", "states", len(states))
	return nil
}

// Start enters the initial state. Calling Start on a running engine
// restarts it from the initial state.
//
// ctx is retained for timeout-driven transitions and the handlers they run.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.states == nil {
		return ErrNotLoaded
	}

	e.runCtx = ctx
	e.transitionLocked(ctx, InitialState, ReasonStart)
	return nil
}

// HandleEvent feeds one dial-pad symbol into the state machine.
//
// The symbol is appended to the buffer and the current state's handlers are
// tried in declared order against the whole buffer. The first full match
// runs: transform, handler, dwell reset, then the declared transition. No
// match leaves the symbol buffered.
//
// Handler and transform failures are logged, observed and contained; they
// are never returned.
//
// Parameters:
//   - ctx: Passed to the matched handler and any on-enter handlers
//   - symbolType: digit, star or hash; empty derives it from value
//   - value: A single symbol 0-9, * or #
//
// Returns:
//   - error: *ValidationError for a bad symbol, ErrNotStarted, or ErrClosed
//
// Thread Safety:
//   - Safe for concurrent use. Symbols are processed one at a time and
//     handlers run while the engine lock is held, so they must not call
//     back into the engine.
func (e *Engine) HandleEvent(ctx context.Context, symbolType SymbolType, value string) error {
	// Validate the symbol outside the lock
	classified, err := Classify(value)
	if err != nil {
		return &ValidationError{Field: "symbol", Value: value, Err: err}
	}
	if symbolType == "" {
		symbolType = classified
	} else if symbolType != classified {
		return &ValidationError{Field: "symbol", Value: value,
			Err: fmt.Errorf("%w: declared %s, got %s", ErrInvalidSymbol, symbolType, classified)}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.current == nil {
		return ErrNotStarted
	}

	// Buffer the symbol
	e.buffer = append(e.buffer, InputEvent{Type: symbolType, Value: value, Timestamp: e.now()})
	e.publishLocked()

	// First match in declared order wins
	input := e.bufferStringLocked()
	st := e.current
	for i := range st.handlers {
		h := &st.handlers[i]
		if !h.matches(input) {
			continue
		}
		e.executeLocked(ctx, st, h, input)
		return nil
	}

	e.logger.Debug("no handler matched", "state", st.def.Name, "input", input)
	return nil
}

// TransitionTo moves the engine to a state from outside the symbol stream.
//
// The transition behaves like a handler-driven one: the buffer is cleared,
// the old timeout cancelled, the new one armed and on-enter handlers run.
//
// Parameters:
//   - ctx: Passed to the target's on-enter handlers
//   - state: Name of a declared state
//
// Returns:
//   - error: ErrUnknownState (engine stays put), ErrNotLoaded, or ErrClosed
func (e *Engine) TransitionTo(ctx context.Context, state string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.states == nil {
		return ErrNotLoaded
	}
	if _, ok := e.states[state]; !ok {
		e.logger.Error("ignoring transition to unknown state", "target", state)
		return fmt.Errorf("%w: %s", ErrUnknownState, state)
	}
	e.transitionLocked(ctx, state, ReasonExternal)
	return nil
}

// Snapshot returns the current state, buffer and pending timeout count.
func (e *Engine) Snapshot() Snapshot {
	return *e.view.Load()
}

// PendingTimeouts reports how many dwell timeouts are armed. It never exceeds one.
func (e *Engine) PendingTimeouts() int {
	return int(e.pending.Load())
}

// Close cancels the outstanding dwell timeout. The engine rejects further use.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelDwellLocked()
	e.closed = true
	e.current = nil
	e.buffer = nil
	e.publishLocked()
	return nil
}

// executeLocked runs a matched handler: transform, invoke, reset the dwell
// timeout, then transition if a next state is declared.
func (e *Engine) executeLocked(ctx context.Context, st *compiledState, h *compiledHandler, input string) {
	def := h.def
	raw := strings.TrimSuffix(input, def.Terminator)

	ev := HandlerEvent{
		State:     st.def.Name,
		Pattern:   def.Pattern,
		Handler:   def.Action.Handler,
		Transform: def.Action.Transform,
		Raw:       raw,
	}

	var value any = raw
	if name := def.Action.Transform; name != "" {
		if transform, ok := e.caps.transformers[name]; ok {
			v, err := transform(raw)
			if err != nil {
				verr := &ValidationError{Field: name, Value: raw, Err: err}
				e.logger.Warn("input rejected by transform",
					"state", st.def.Name,
					"transform", name,
					"input", raw,
					"error", verr,
				)
				ev.Err = verr
				e.observeHandler(ev)
				return
			}
			value = v
		} else {
			e.logger.Warn("transform not registered, passing raw input", "transform", name, "state", st.def.Name)
		}
	}
	ev.Value = value

	if name := def.Action.Handler; name != "" {
		in := Input{State: st.def.Name, Raw: raw, Value: value, Args: def.Action.Args}
		ev.Invoked, ev.Duration, ev.Err = e.invokeLocked(ctx, name, in)
	}
	e.observeHandler(ev)

	// The handler ran in this state; restart its dwell period.
	e.cancelDwellLocked()
	e.armDwellLocked()

	if def.NextState != "" {
		e.transitionLocked(ctx, def.NextState, ReasonHandler)
	}
}

// invokeLocked calls a bound handler, recovering panics. Unbound names are
// logged and skipped.
func (e *Engine) invokeLocked(ctx context.Context, name string, in Input) (invoked bool, took time.Duration, err error) {
	fn, ok := e.caps.handlers[name]
	if !ok {
		e.logger.Warn("handler not registered", "handler", name, "state", in.State)
		return false, 0, nil
	}

	start := time.Now()
	err = func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx, in)
	}()
	took = time.Since(start)

	if err != nil {
		herr := &HandlerExecutionError{State: in.State, Handler: name, Err: err}
		e.logger.Error("handler failed", "handler", name, "state", in.State, "error", err)
		if e.onError != nil {
			e.onError(ctx, herr)
		}
		return true, took, herr
	}

	e.logger.Debug("handler completed", "handler", name, "state", in.State, "duration_ms", took.Milliseconds())
	return true, took, nil
}

// transitionLocked cancels the old timeout, clears the buffer, activates the
// target, arms its timeout, then runs its on-enter handlers in order.
func (e *Engine) transitionLocked(ctx context.Context, target string, reason Reason) {
	next, ok := e.states[target]
	if !ok {
		e.logger.Error("ignoring transition to unknown state", "target", target, "reason", string(reason))
		return
	}

	from := ""
	if e.current != nil {
		from = e.current.def.Name
	}

	e.cancelDwellLocked()
	e.buffer = nil
	e.current = next
	e.enteredAt = e.now()
	e.armDwellLocked()
	e.publishLocked()

	e.logger.Info("state transition", "from", from, "to", target, "reason", string(reason))
	if e.observer != nil {
		e.observer.Transition(TransitionEvent{From: from, To: target, Reason: reason, Timestamp: e.enteredAt})
	}

	for _, name := range next.def.OnEnter {
		ev := HandlerEvent{State: target, Handler: name, OnEnter: true}
		ev.Invoked, ev.Duration, ev.Err = e.invokeLocked(ctx, name, Input{State: target, Args: map[string]any{}})
		e.observeHandler(ev)
	}
}

// armDwellLocked starts the current state's dwell timer.
func (e *Engine) armDwellLocked() {
	if e.current == nil {
		return
	}
	e.gen++
	gen := e.gen
	e.dwell = &dwellTimer{
		gen:   gen,
		timer: time.AfterFunc(e.current.def.Timeout, func() { e.expire(gen) }),
	}
	e.pending.Add(1)
}

// cancelDwellLocked stops the outstanding dwell timer, if any. A callback
// already in flight will see a stale generation and do nothing.
func (e *Engine) cancelDwellLocked() {
	if e.dwell == nil {
		return
	}
	e.dwell.timer.Stop()
	e.dwell = nil
	e.pending.Add(-1)
}

// expire handles a dwell timer firing.
func (e *Engine) expire(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.dwell == nil || e.dwell.gen != gen {
		return
	}
	e.dwell = nil
	e.pending.Add(-1)
	e.publishLocked()

	st := e.current
	if st.def.OnTimeout == "" {
		e.logger.Debug("dwell timeout elapsed, idling", "state", st.def.Name)
		return
	}
	e.logger.Info("dwell timeout elapsed", "state", st.def.Name, "target", st.def.OnTimeout)
	e.transitionLocked(e.runCtx, st.def.OnTimeout, ReasonTimeout)
}

func (e *Engine) observeHandler(ev HandlerEvent) {
	if e.observer != nil {
		e.observer.HandlerDone(ev)
	}
}

func (e *Engine) bufferStringLocked() string {
	var b strings.Builder
	for _, ev := range e.buffer {
		b.WriteString(ev.Value)
	}
	return b.String()
}

// publishLocked refreshes the lock-free snapshot.
func (e *Engine) publishLocked() {
	s := &Snapshot{
		PendingTimeouts: int(e.pending.Load()),
		Started:         e.current != nil,
		Buffer:          e.bufferStringLocked(),
	}
	if e.current != nil {
		s.State = e.current.def.Name
		s.EnteredAt = e.enteredAt
	}
	e.view.Store(s)
}
