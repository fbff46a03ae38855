package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementPhoneEvents = "phone_events"
	MeasurementTransitions = "dtmf_transitions"
	MeasurementHandlers    = "dtmf_handlers"
	MeasurementTimerEvents = "timer_events"
)

// WritePhoneEvent records one phone line event. accepted is false for
// digits discarded while on hook.
func (c *Client) WritePhoneEvent(eventType, digit string, accepted bool, ts time.Time) {
	fields := map[string]any{"accepted": accepted}
	if digit != "" {
		fields["digit"] = digit
	}
	c.WritePointWithTime(MeasurementPhoneEvents, map[string]string{"type": eventType}, fields, ts)
}

// WriteTransition records one state machine transition.
func (c *Client) WriteTransition(from, to, reason string, ts time.Time) {
	if from == "" {
		from = "none"
	}
	c.WritePointWithTime(MeasurementTransitions,
		map[string]string{"from": from, "to": to, "reason": reason},
		map[string]any{"count": 1},
		ts,
	)
}

// WriteHandler records the outcome of one matched handler.
func (c *Client) WriteHandler(state, handler, outcome string, took time.Duration, ts time.Time) {
	if handler == "" {
		handler = "none"
	}
	c.WritePointWithTime(MeasurementHandlers,
		map[string]string{"state": state, "handler": handler, "outcome": outcome},
		map[string]any{"duration_ms": float64(took.Microseconds()) / 1000},
		ts,
	)
}

// WriteTimerEvent records one timer lifecycle event.
func (c *Client) WriteTimerEvent(timerID, name, event string, remainingSeconds int64, ts time.Time) {
	c.WritePointWithTime(MeasurementTimerEvents,
		map[string]string{"event": event, "timer_id": timerID},
		map[string]any{"name": name, "remaining_s": remainingSeconds},
		ts,
	)
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point. It is a no-op when the client
// is closed.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
