package operator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/iroh-home/iroh-core/internal/dtmf"
)

func (o *Operator) quickTimer(ctx context.Context, in dtmf.Input) error {
	if o.timers == nil {
		return fmt.Errorf("%s: %w", HandlerQuickTimer, ErrUnavailable)
	}
	minutes, err := intValue(in)
	if err != nil {
		return err
	}
	t, err := o.timers.QuickTimer(ctx, minutes)
	if err != nil {
		return fmt.Errorf("quick timer: %w", err)
	}
	o.logger.Info("quick timer set", "timer_id", t.ID, "minutes", minutes)
	return nil
}

// createTimer takes its name from the "name" argument; a blank name is
// generated by the timer manager.
func (o *Operator) createTimer(ctx context.Context, in dtmf.Input) error {
	if o.timers == nil {
		return fmt.Errorf("%s: %w", HandlerCreateTimer, ErrUnavailable)
	}
	minutes, err := intValue(in)
	if err != nil {
		return err
	}
	t, err := o.timers.CreateTimer(ctx, time.Duration(minutes)*time.Minute, in.Arg("name", ""))
	if err != nil {
		return fmt.Errorf("create timer: %w", err)
	}
	o.say(ctx, fmt.Sprintf("%s set for %d minutes", t.Name, minutes))
	return nil
}

func (o *Operator) cancelTimers(ctx context.Context, _ dtmf.Input) error {
	if o.timers == nil {
		return fmt.Errorf("%s: %w", HandlerCancelTimers, ErrUnavailable)
	}
	n := o.timers.CancelAll()
	switch n {
	case 0:
		o.say(ctx, "No timers running")
	case 1:
		o.say(ctx, "Cancelled 1 timer")
	default:
		o.say(ctx, fmt.Sprintf("Cancelled %d timers", n))
	}
	return nil
}

func (o *Operator) lightsOn(ctx context.Context, in dtmf.Input) error {
	if o.hub == nil {
		return fmt.Errorf("%s: %w", HandlerLightsOn, ErrUnavailable)
	}
	return o.hub.LightsOn(ctx, in.Arg("entity_id", ""))
}

func (o *Operator) lightsOff(ctx context.Context, in dtmf.Input) error {
	if o.hub == nil {
		return fmt.Errorf("%s: %w", HandlerLightsOff, ErrUnavailable)
	}
	return o.hub.LightsOff(ctx, in.Arg("entity_id", ""))
}

func (o *Operator) setTemperature(ctx context.Context, in dtmf.Input) error {
	if o.hub == nil {
		return fmt.Errorf("%s: %w", HandlerSetTemperature, ErrUnavailable)
	}
	degrees, err := intValue(in)
	if err != nil {
		return err
	}
	if err := o.hub.SetTemperature(ctx, in.Arg("entity_id", ""), float64(degrees)); err != nil {
		return err
	}
	o.say(ctx, fmt.Sprintf("Setting temperature to %d degrees", degrees))
	return nil
}

func (o *Operator) announce(ctx context.Context, in dtmf.Input) error {
	if o.audio == nil {
		return fmt.Errorf("%s: %w", HandlerAnnounce, ErrUnavailable)
	}
	text := in.Arg("text", "")
	if text == "" {
		return fmt.Errorf("%w: announce needs a text argument", ErrBadValue)
	}
	return o.audio.Speak(ctx, text)
}

// tone plays a fixed tone while the handset is lifted.
func (o *Operator) tone(freqHz, durationMs int) dtmf.HandlerFunc {
	return func(ctx context.Context, _ dtmf.Input) error {
		if o.audio == nil || !o.offHook() {
			return nil
		}
		return o.audio.PlayTone(ctx, freqHz, durationMs)
	}
}

// intValue accepts a transformed int or, when no transform was bound, the
// raw digits.
func intValue(in dtmf.Input) (int, error) {
	switch v := in.Value.(type) {
	case int:
		return v, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrBadValue, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: unexpected %T", ErrBadValue, in.Value)
	}
}
