package phone

import (
	"context"
	"sync"
	"time"

	"github.com/iroh-home/iroh-core/internal/dtmf"
)

// DefaultDTMFTimeout is the digit grouping window of the line buffer.
const DefaultDTMFTimeout = 5 * time.Second

// Engine is the part of the state machine the pipeline drives.
type Engine interface {
	Start(ctx context.Context) error
	HandleEvent(ctx context.Context, symbolType dtmf.SymbolType, value string) error
}

// EventListener is told about every event after the pipeline has handled it.
type EventListener func(ctx context.Context, ev Event, accepted bool)

// PipelineConfig configures a Pipeline.
type PipelineConfig struct {
	// DTMFTimeout is the window after which the line's digit buffer restarts.
	DTMFTimeout time.Duration

	// ResetOnHangUp restarts the engine in its initial state on on_hook.
	// When false the engine is left exactly where the caller hung up.
	ResetOnHangUp bool

	Logger    Logger
	Listeners []EventListener
}

// LineState is a snapshot of the phone line.
type LineState struct {
	OffHook   bool      `json:"off_hook"`
	LastDigit time.Time `json:"last_digit,omitzero"`
	Digits    []string  `json:"digits"`
}

// Pipeline turns phone events into engine calls. It is the only writer of
// the line state; Dispatch must be called from a single goroutine, which the
// Stream guarantees.
type Pipeline struct {
	engine        Engine
	dtmfTimeout   time.Duration
	resetOnHangUp bool
	logger        Logger
	listeners     []EventListener

	mu        sync.RWMutex
	offHook   bool
	lastDigit time.Time
	digits    []string
}

// NewPipeline creates a pipeline feeding engine.
func NewPipeline(engine Engine, cfg PipelineConfig) *Pipeline {
	if cfg.DTMFTimeout <= 0 {
		cfg.DTMFTimeout = DefaultDTMFTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Pipeline{
		engine:        engine,
		dtmfTimeout:   cfg.DTMFTimeout,
		resetOnHangUp: cfg.ResetOnHangUp,
		logger:        cfg.Logger,
		listeners:     cfg.Listeners,
	}
}

// Handle is a Stream Handler. Engine errors are logged.
func (p *Pipeline) Handle(ctx context.Context, ev Event) {
	if err := p.Dispatch(ctx, ev); err != nil {
		p.logger.Error("phone event not processed", "type", string(ev.Type), "error", err)
	}
}

// Dispatch applies one event:
//   - off_hook marks the line active and (re)starts the engine;
//   - on_hook marks the line inactive, restarting the engine only when
//     ResetOnHangUp is set;
//   - dtmf is forwarded while off-hook and discarded otherwise.
//
// Only engine-level errors are returned.
func (p *Pipeline) Dispatch(ctx context.Context, ev Event) error {
	var (
		err      error
		accepted = true
	)

	switch ev.Type {
	case EventOffHook:
		p.mu.Lock()
		p.offHook = true
		p.digits = nil
		p.lastDigit = time.Time{}
		p.mu.Unlock()

		p.logger.Info("handset lifted")
		err = p.engine.Start(ctx)

	case EventOnHook:
		p.mu.Lock()
		p.offHook = false
		p.digits = nil
		p.mu.Unlock()

		if p.resetOnHangUp {
			p.logger.Info("handset replaced, resetting state machine")
			err = p.engine.Start(ctx)
		} else {
			p.logger.Info("handset replaced")
		}

	case EventDTMF:
		accepted, err = p.dispatchDigit(ctx, &ev)

	default:
		accepted = false
		p.logger.Warn("ignoring unknown phone event", "type", string(ev.Type))
	}

	for _, l := range p.listeners {
		l(ctx, ev, accepted)
	}
	return err
}

func (p *Pipeline) dispatchDigit(ctx context.Context, ev *Event) (bool, error) {
	sym := ev.Symbol
	if sym == "" {
		var err error
		if sym, err = dtmf.Classify(ev.Digit); err != nil {
			p.logger.Warn("discarding invalid digit", "digit", ev.Digit)
			return false, nil
		}
		ev.Symbol = sym
	}

	p.mu.Lock()
	if !p.offHook {
		p.mu.Unlock()
		p.logger.Debug("discarding digit while on hook", "digit", ev.Digit)
		return false, nil
	}
	if !p.lastDigit.IsZero() && ev.Timestamp.Sub(p.lastDigit) > p.dtmfTimeout {
		p.digits = nil
	}
	p.digits = append(p.digits, ev.Digit)
	p.lastDigit = ev.Timestamp
	ev.Buffer = append([]string(nil), p.digits...)
	p.mu.Unlock()

	p.logger.Debug("digit received", "digit", ev.Digit, "symbol", string(sym))
	return true, p.engine.HandleEvent(ctx, sym, ev.Digit)
}

// Line returns a snapshot of the line state.
func (p *Pipeline) Line() LineState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return LineState{
		OffHook:   p.offHook,
		LastDigit: p.lastDigit,
		Digits:    append([]string{}, p.digits...),
	}
}
