package dtmf

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// InitialState is the state entered by Start.
const InitialState = "initial"

// SymbolType classifies one dial-pad symbol.
type SymbolType string

// Symbol types.
const (
	SymbolDigit SymbolType = "digit"
	SymbolStar  SymbolType = "star"
	SymbolHash  SymbolType = "hash"
)

// Classify returns the symbol type of a single dial-pad value.
func Classify(value string) (SymbolType, error) {
	if len(value) != 1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, value)
	}
	switch c := value[0]; {
	case c >= '0' && c <= '9':
		return SymbolDigit, nil
	case c == '*':
		return SymbolStar, nil
	case c == '#':
		return SymbolHash, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, value)
	}
}

// InputEvent is one buffered symbol.
type InputEvent struct {
	Type      SymbolType
	Value     string
	Timestamp time.Time
}

// Action binds a matched pattern to a capability.
type Action struct {
	Handler   string         `yaml:"handler" json:"handler,omitempty"`
	Transform string         `yaml:"transform" json:"transform,omitempty"`
	Args      map[string]any `yaml:"args" json:"args,omitempty"`
}

// HandlerDefinition is one row of a state's pattern table.
type HandlerDefinition struct {
	Type        string `yaml:"type" json:"type,omitempty"`
	Pattern     string `yaml:"pattern" json:"pattern"`
	Description string `yaml:"description" json:"description,omitempty"`
	Action      Action `yaml:"action" json:"action"`
	Terminator  string `yaml:"terminator" json:"terminator,omitempty"`
	NextState   string `yaml:"next_state" json:"next_state,omitempty"`
}

// StateDefinition describes one state. It is immutable once loaded.
type StateDefinition struct {
	Name        string
	Description string
	Handlers    []HandlerDefinition
	Timeout     time.Duration
	OnEnter     []string
	OnTimeout   string
	OnInvalid   string
}

// Input is what a bound handler receives.
type Input struct {
	// State is the state the handler was matched in.
	State string

	// Raw is the buffer content with any terminator stripped.
	Raw string

	// Value is the transformed value, or Raw when no transform is bound.
	Value any

	// Args are the static arguments declared on the action.
	Args map[string]any
}

// Arg returns a static argument as a string, or def when absent.
func (in Input) Arg(name, def string) string {
	if v, ok := in.Args[name]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

// HandlerFunc is a bound capability invoked on a match or on state entry.
type HandlerFunc func(ctx context.Context, in Input) error

// TransformFunc converts matched digits into a typed value.
// Returning an error rejects the input.
type TransformFunc func(raw string) (any, error)

// Reason explains why a transition happened.
type Reason string

// Transition reasons.
const (
	ReasonStart    Reason = "start"
	ReasonHandler  Reason = "handler"
	ReasonTimeout  Reason = "timeout"
	ReasonExternal Reason = "external"
)

// TransitionEvent is reported to observers after a state change.
type TransitionEvent struct {
	From      string
	To        string
	Reason    Reason
	Timestamp time.Time
}

// HandlerEvent is reported to observers after a match has been processed
// and after each on-enter handler runs. On-enter events carry no Pattern.
type HandlerEvent struct {
	State     string
	Pattern   string
	Handler   string
	Transform string
	Raw       string
	Value     any

	// Invoked is false when the handler was skipped (rejected input or unbound name).
	Invoked  bool
	OnEnter  bool
	Err      error
	Duration time.Duration
}

// Handler outcomes reported by HandlerEvent.Outcome.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// Outcome classifies the event: failed when the handler errored or
// panicked, rejected when a transform refused the input, skipped when no
// handler ran, ok otherwise.
func (ev HandlerEvent) Outcome() string {
	var herr *HandlerExecutionError
	switch {
	case errors.As(ev.Err, &herr):
		return OutcomeFailed
	case errors.Is(ev.Err, ErrValidation):
		return OutcomeRejected
	case ev.Err != nil:
		return OutcomeFailed
	case !ev.Invoked:
		return OutcomeSkipped
	default:
		return OutcomeOK
	}
}

// Observer receives engine activity. Calls are made while the engine is
// processing, so implementations must not block or call back into the engine.
type Observer interface {
	Transition(ev TransitionEvent)
	HandlerDone(ev HandlerEvent)
}

// Observers fans every call out to each observer in order.
type Observers []Observer

// Transition implements Observer.
func (o Observers) Transition(ev TransitionEvent) {
	for _, obs := range o {
		obs.Transition(ev)
	}
}

// HandlerDone implements Observer.
func (o Observers) HandlerDone(ev HandlerEvent) {
	for _, obs := range o {
		obs.HandlerDone(ev)
	}
}

// Snapshot is a point-in-time view of the engine.
type Snapshot struct {
	State           string    `json:"state"`
	Buffer          string    `json:"buffer"`
	PendingTimeouts int       `json:"pending_timeouts"`
	Started         bool      `json:"started"`
	EnteredAt       time.Time `json:"entered_at"`
}

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
