package operator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iroh-home/iroh-core/internal/audio"
	"github.com/iroh-home/iroh-core/internal/dtmf"
	"github.com/iroh-home/iroh-core/internal/timer"
)

// Handler and transform names available to command tables.
const (
	HandlerQuickTimer      = "quick_timer"
	HandlerCreateTimer     = "create_timer"
	HandlerCancelTimers    = "cancel_timers"
	HandlerLightsOn        = "lights_on"
	HandlerLightsOff       = "lights_off"
	HandlerSetTemperature  = "set_temperature"
	HandlerAnnounce        = "announce"
	HandlerPlayDialTone    = "play_dial_tone"
	HandlerPlayConfirmTone = "play_confirm_tone"
	HandlerPlayErrorTone   = "play_error_tone"

	TransformMinutes     = "minutes_from_digits"
	TransformTemperature = "temperature_from_digits"
)

// Bounds enforced by the transforms.
const (
	MinMinutes     = 1
	MaxMinutes     = timer.MaxQuickMinutes
	MinTemperature = 60
	MaxTemperature = 85
)

// announceTimeout bounds speech triggered by timer events.
const announceTimeout = 30 * time.Second

// TimerService creates and cancels countdowns. *timer.Manager implements it.
type TimerService interface {
	QuickTimer(ctx context.Context, minutes int) (*timer.Timer, error)
	CreateTimer(ctx context.Context, d time.Duration, name string) (*timer.Timer, error)
	CancelAll() int
}

// HomeHub drives household devices. *hub.Client implements it.
type HomeHub interface {
	LightsOn(ctx context.Context, entityID string) error
	LightsOff(ctx context.Context, entityID string) error
	SetTemperature(ctx context.Context, entityID string, temperature float64) error
}

// Speaker talks to the caller. *audio.Service implements it.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	PlayTone(ctx context.Context, freqHz, durationMs int) error
}

// Ringer rings the handset. *phone.Client implements it.
type Ringer interface {
	Ring(ctx context.Context, pattern string, repeat int) error
}

// Logger defines the logging interface used by the Operator.
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

// Config holds the operator's collaborators. Any of them may be nil; the
// handlers that need a missing one fail with ErrUnavailable.
type Config struct {
	Timers TimerService
	Hub    HomeHub
	Audio  Speaker
	Ringer Ringer

	// RingPattern and RingRepeat are used when a timer completes.
	RingPattern string
	RingRepeat  int

	// OffHook reports whether the handset is lifted. Tones are only played
	// while it returns true. Nil means always.
	OffHook func() bool

	Logger Logger
}

// Operator owns the capability table and the timer callbacks.
type Operator struct {
	timers  TimerService
	hub     HomeHub
	audio   Speaker
	ringer  Ringer
	pattern string
	repeat  int
	offHook func() bool
	logger  Logger

	wg sync.WaitGroup
}

// New creates an operator.
func New(cfg Config) *Operator {
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	if cfg.OffHook == nil {
		cfg.OffHook = func() bool { return true }
	}
	if cfg.RingRepeat <= 0 {
		cfg.RingRepeat = 1
	}
	return &Operator{
		timers:  cfg.Timers,
		hub:     cfg.Hub,
		audio:   cfg.Audio,
		ringer:  cfg.Ringer,
		pattern: cfg.RingPattern,
		repeat:  cfg.RingRepeat,
		offHook: cfg.OffHook,
		logger:  cfg.Logger,
	}
}

// Capabilities returns a fresh capability table with every handler and
// transform bound.
func (o *Operator) Capabilities() *dtmf.Capabilities {
	return dtmf.NewCapabilities().
		Handler(HandlerQuickTimer, o.quickTimer).
		Handler(HandlerCreateTimer, o.createTimer).
		Handler(HandlerCancelTimers, o.cancelTimers).
		Handler(HandlerLightsOn, o.lightsOn).
		Handler(HandlerLightsOff, o.lightsOff).
		Handler(HandlerSetTemperature, o.setTemperature).
		Handler(HandlerAnnounce, o.announce).
		Handler(HandlerPlayDialTone, o.tone(audio.DialToneHz, audio.DialToneMs)).
		Handler(HandlerPlayConfirmTone, o.tone(audio.ConfirmToneHz, audio.ConfirmToneMs)).
		Handler(HandlerPlayErrorTone, o.tone(audio.ErrorToneHz, audio.ErrorToneMs)).
		Transformer(TransformMinutes, dtmf.IntInRange(MinMinutes, MaxMinutes)).
		Transformer(TransformTemperature, dtmf.IntInRange(MinTemperature, MaxTemperature))
}

// HandlerErrorHook plays the error tone and apologises. Pass it to
// dtmf.WithHandlerErrorHook.
func (o *Operator) HandlerErrorHook(ctx context.Context, herr *dtmf.HandlerExecutionError) {
	if o.audio == nil {
		return
	}
	if err := o.audio.PlayTone(ctx, audio.ErrorToneHz, audio.ErrorToneMs); err != nil {
		o.logger.Warn("failed to play error tone", "handler", herr.Handler, "error", err)
	}
	if err := o.audio.Speak(ctx, "Sorry, that didn't work"); err != nil {
		o.logger.Warn("failed to speak apology", "handler", herr.Handler, "error", err)
	}
}

// TimerListener returns the callbacks for timer.WithListener. Speech and
// ringing run in the background so the countdown is not delayed; Wait
// blocks until they have finished.
func (o *Operator) TimerListener() timer.Listener {
	return func(ctx context.Context, ev timer.Event, info timer.Info) {
		switch ev {
		case timer.EventOneMinute:
			o.background(ctx, func(ctx context.Context) {
				o.say(ctx, fmt.Sprintf("One minute remaining on %s", info.Name))
			})
		case timer.EventCompleted:
			o.background(ctx, func(ctx context.Context) {
				o.ring(ctx, info)
				o.say(ctx, fmt.Sprintf("%s complete", info.Name))
			})
		case timer.EventCancelled:
			o.logger.Info("timer cancelled", "timer_id", info.ID, "name", info.Name, "remaining_s", info.Remaining)
			// cancel_timers already speaks a summary for bulk cancellations.
			if info.CancelledBy == timer.CancelledByCancelAll {
				return
			}
			o.background(ctx, func(ctx context.Context) {
				o.say(ctx, fmt.Sprintf("Timer %s cancelled", info.Name))
			})
		}
	}
}

// Wait blocks until background announcements have finished.
func (o *Operator) Wait() {
	o.wg.Wait()
}

func (o *Operator) background(ctx context.Context, fn func(ctx context.Context)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), announceTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (o *Operator) ring(ctx context.Context, info timer.Info) {
	if o.ringer == nil {
		return
	}
	if err := o.ringer.Ring(ctx, o.pattern, o.repeat); err != nil {
		o.logger.Warn("failed to ring for timer", "timer_id", info.ID, "error", err)
	}
}

func (o *Operator) say(ctx context.Context, text string) {
	if o.audio == nil {
		return
	}
	if err := o.audio.Speak(ctx, text); err != nil {
		o.logger.Warn("failed to speak", "text", text, "error", err)
	}
}
