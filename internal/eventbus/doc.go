// Package eventbus publishes Iroh activity to the outside world.
//
// A Bus observes the DTMF engine, the phone pipeline and the timer manager
// and forwards each event to MQTT (iroh/... topics), InfluxDB and the API's
// WebSocket hub. SubscribeCommands accepts forced state transitions from
// iroh/command/state.
package eventbus
