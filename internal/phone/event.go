package phone

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iroh-home/iroh-core/internal/dtmf"
)

// EventType is the kind of phone line event.
type EventType string

// Event types sent by the phone service.
const (
	EventOffHook EventType = "off_hook"
	EventOnHook  EventType = "on_hook"
	EventDTMF    EventType = "dtmf"
)

// Event is a normalised phone line event.
type Event struct {
	Type      EventType `json:"type"`
	Digit     string    `json:"digit,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Symbol is the classified digit, set for dtmf events.
	Symbol dtmf.SymbolType `json:"symbol,omitempty"`

	// Buffer holds the digits grouped by the line's dtmf_timeout window,
	// including this one. Set by the pipeline for accepted dtmf events.
	Buffer []string `json:"buffer,omitempty"`
}

type rawEvent struct {
	Type      string `json:"type"`
	Digit     string `json:"digit"`
	Timestamp string `json:"timestamp"`
}

// timestampLayouts are tried in order. The service may omit the zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseEvent decodes one stream payload. A missing timestamp becomes now.
// Every failure wraps ErrMalformedEvent.
func ParseEvent(data []byte, now time.Time) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	ev := Event{Type: EventType(raw.Type), Timestamp: now}
	switch ev.Type {
	case EventOffHook, EventOnHook:
	case EventDTMF:
		if raw.Digit == "" {
			return Event{}, fmt.Errorf("%w: dtmf event without digit", ErrMalformedEvent)
		}
		sym, err := dtmf.Classify(raw.Digit)
		if err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev.Digit = raw.Digit
		ev.Symbol = sym
	case "":
		return Event{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	default:
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, raw.Type)
	}

	if raw.Timestamp != "" {
		ts, err := parseTimestamp(raw.Timestamp, now.Location())
		if err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		ev.Timestamp = ts
	}
	return ev, nil
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
