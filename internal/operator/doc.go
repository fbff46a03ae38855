// Package operator binds the dial-pad command table to the household.
//
// It supplies the named handlers and transforms that state tables reference
// (timers, lights, thermostat, speech and tones) and turns timer lifecycle
// events into phone rings and announcements.
//
//	op := operator.New(operator.Config{Timers: timers, Hub: ha, Audio: speech, Ringer: phoneClient})
//	engine := dtmf.NewEngine(op.Capabilities(), dtmf.WithHandlerErrorHook(op.HandlerErrorHook))
package operator
