package eventbus

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/iroh-home/iroh-core/internal/dtmf"
	"github.com/iroh-home/iroh-core/internal/infrastructure/mqtt"
	"github.com/iroh-home/iroh-core/internal/phone"
	"github.com/iroh-home/iroh-core/internal/timer"
)

// DefaultQueueSize bounds events waiting for delivery.
const DefaultQueueSize = 512

// WebSocket channels used with Broadcaster.
const (
	ChannelPhoneEvent     = "phone.event"
	ChannelDTMFTransition = "dtmf.transition"
	ChannelDTMFHandler    = "dtmf.handler"
	ChannelTimerEvent     = "timer.event"
)

// Publisher sends JSON payloads to the message broker.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// PointWriter records time-series points.
type PointWriter interface {
	WritePhoneEvent(eventType, digit string, accepted bool, ts time.Time)
	WriteTransition(from, to, reason string, ts time.Time)
	WriteHandler(state, handler, outcome string, took time.Duration, ts time.Time)
	WriteTimerEvent(timerID, name, event string, remainingSeconds int64, ts time.Time)
}

// Broadcaster pushes events to connected UI clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger defines the logging interface used by the Bus.
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

// Option configures a Bus.
type Option func(*Bus)

// WithPublisher adds the broker sink.
func WithPublisher(p Publisher) Option {
	return func(b *Bus) { b.publisher = p }
}

// WithPointWriter adds the time-series sink.
func WithPointWriter(w PointWriter) Option {
	return func(b *Bus) { b.points = w }
}

// WithBroadcaster adds the UI push sink.
func WithBroadcaster(bc Broadcaster) Option {
	return func(b *Bus) { b.broadcaster = bc }
}

// WithLogger sets the bus logger.
func WithLogger(logger Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithQueueSize bounds the delivery queue. Values <= 0 keep the default.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.size = n
		}
	}
}

// Bus fans phone, engine and timer activity out to the broker, the
// time-series store and WebSocket clients.
//
// Producers only enqueue: engine observers run under the engine lock and
// broker publishes wait on acknowledgements. Run delivers. When the queue is
// full the event is dropped and counted. Sinks that were not configured are
// skipped.
type Bus struct {
	publisher   Publisher
	points      PointWriter
	broadcaster Broadcaster
	logger      Logger
	topics      mqtt.Topics

	size    int
	queue   chan event
	dropped atomic.Uint64
	now     func() time.Time
}

// event is one queued item. Exactly one of the pointers is set.
type event struct {
	at         time.Time
	phone      *PhoneMessage
	transition *TransitionMessage
	handler    *HandlerMessage
	timer      *TimerMessage
}

// New creates a bus with the given sinks.
func New(opts ...Option) *Bus {
	b := &Bus{
		logger: noopLogger{},
		size:   DefaultQueueSize,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.queue = make(chan event, b.size)
	return b
}

// Transition implements dtmf.Observer.
func (b *Bus) Transition(ev dtmf.TransitionEvent) {
	at := ev.Timestamp
	if at.IsZero() {
		at = b.now()
	}
	b.enqueue(event{at: at, transition: &TransitionMessage{
		From:      ev.From,
		To:        ev.To,
		Reason:    string(ev.Reason),
		Timestamp: at.UTC(),
	}})
}

// HandlerDone implements dtmf.Observer.
func (b *Bus) HandlerDone(ev dtmf.HandlerEvent) {
	at := b.now()
	msg := &HandlerMessage{
		State:      ev.State,
		Pattern:    ev.Pattern,
		Handler:    ev.Handler,
		Input:      ev.Raw,
		Outcome:    ev.Outcome(),
		OnEnter:    ev.OnEnter,
		DurationMS: ev.Duration.Milliseconds(),
		Timestamp:  at.UTC(),
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}
	b.enqueue(event{at: at, handler: msg})
}

// PhoneListener returns a listener for phone.PipelineConfig.
func (b *Bus) PhoneListener() phone.EventListener {
	return func(_ context.Context, ev phone.Event, accepted bool) {
		at := ev.Timestamp
		if at.IsZero() {
			at = b.now()
		}
		b.enqueue(event{at: at, phone: &PhoneMessage{
			Type:      string(ev.Type),
			Digit:     ev.Digit,
			Buffer:    ev.Buffer,
			Accepted:  accepted,
			Timestamp: at.UTC(),
		}})
	}
}

// TimerListener returns a listener for timer.WithListener.
func (b *Bus) TimerListener() timer.Listener {
	return func(_ context.Context, ev timer.Event, info timer.Info) {
		at := b.now()
		b.enqueue(event{at: at, timer: &TimerMessage{
			Event:     string(ev),
			Timer:     info,
			Timestamp: at.UTC(),
		}})
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Bus) enqueue(ev event) {
	select {
	case b.queue <- ev:
	default:
		n := b.dropped.Add(1)
		b.logger.Warn("event bus queue full, event dropped", "dropped_total", n)
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is
// already queued. It always returns nil.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-b.queue:
					b.deliver(ev)
				default:
					return nil
				}
			}
		}
	}
}

func (b *Bus) deliver(ev event) {
	switch {
	case ev.phone != nil:
		b.deliverPhone(ev.at, ev.phone)
	case ev.transition != nil:
		b.deliverTransition(ev.at, ev.transition)
	case ev.handler != nil:
		b.deliverHandler(ev.at, ev.handler)
	case ev.timer != nil:
		b.deliverTimer(ev.at, ev.timer)
	}
}

func (b *Bus) deliverPhone(at time.Time, msg *PhoneMessage) {
	b.publish(b.topics.PhoneEvent(msg.Type), msg, false)
	switch phone.EventType(msg.Type) {
	case phone.EventOffHook, phone.EventOnHook:
		b.publish(b.topics.PhoneLine(), LineMessage{
			OffHook:   msg.Type == string(phone.EventOffHook),
			Timestamp: msg.Timestamp,
		}, true)
	}
	if b.points != nil {
		b.points.WritePhoneEvent(msg.Type, msg.Digit, msg.Accepted, at)
	}
	b.broadcast(ChannelPhoneEvent, msg)
}

func (b *Bus) deliverTransition(at time.Time, msg *TransitionMessage) {
	b.publish(b.topics.DTMFTransition(), msg, false)
	b.publish(b.topics.DTMFState(), StateMessage{State: msg.To, Since: msg.Timestamp}, true)
	if b.points != nil {
		b.points.WriteTransition(msg.From, msg.To, msg.Reason, at)
	}
	b.broadcast(ChannelDTMFTransition, msg)
}

func (b *Bus) deliverHandler(at time.Time, msg *HandlerMessage) {
	name := msg.Handler
	if name == "" {
		name = "none"
	}
	b.publish(b.topics.DTMFHandler(name), msg, false)
	if b.points != nil && msg.Handler != "" {
		b.points.WriteHandler(msg.State, msg.Handler, msg.Outcome, time.Duration(msg.DurationMS)*time.Millisecond, at)
	}
	b.broadcast(ChannelDTMFHandler, msg)
}

func (b *Bus) deliverTimer(at time.Time, msg *TimerMessage) {
	b.publish(b.topics.TimerEvent(msg.Timer.ID, msg.Event), msg, false)
	if b.points != nil {
		b.points.WriteTimerEvent(msg.Timer.ID, msg.Timer.Name, msg.Event, msg.Timer.Remaining, at)
	}
	b.broadcast(ChannelTimerEvent, msg)
}

func (b *Bus) publish(topic string, v any, retained bool) {
	if b.publisher == nil {
		return
	}
	if err := b.publisher.PublishJSON(topic, v, retained); err != nil {
		b.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func (b *Bus) broadcast(channel string, payload any) {
	if b.broadcaster != nil {
		b.broadcaster.Broadcast(channel, payload)
	}
}
