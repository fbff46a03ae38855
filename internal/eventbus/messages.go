package eventbus

import (
	"time"

	"github.com/iroh-home/iroh-core/internal/timer"
)

// PhoneMessage is published for every phone line event.
type PhoneMessage struct {
	Type      string    `json:"type"`
	Digit     string    `json:"digit,omitempty"`
	Buffer    []string  `json:"buffer,omitempty"`
	Accepted  bool      `json:"accepted"`
	Timestamp time.Time `json:"timestamp"`
}

// LineMessage is the retained hook state.
type LineMessage struct {
	OffHook   bool      `json:"off_hook"`
	Timestamp time.Time `json:"timestamp"`
}

// TransitionMessage is published for every engine transition.
type TransitionMessage struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// StateMessage is the retained current engine state.
type StateMessage struct {
	State string    `json:"state"`
	Since time.Time `json:"since"`
}

// HandlerMessage reports one processed match.
type HandlerMessage struct {
	State      string    `json:"state"`
	Pattern    string    `json:"pattern"`
	Handler    string    `json:"handler,omitempty"`
	Input      string    `json:"input"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	OnEnter    bool      `json:"on_enter,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// TimerMessage reports one timer lifecycle event.
type TimerMessage struct {
	Event     string     `json:"event"`
	Timer     timer.Info `json:"timer"`
	Timestamp time.Time  `json:"timestamp"`
}

// StateCommand is the inbound payload on iroh/command/state.
type StateCommand struct {
	State string `json:"state"`
}
