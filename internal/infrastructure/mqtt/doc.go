// Package mqtt connects Iroh Core to an MQTT broker used as its event bus.
//
// Phone events, state machine transitions and timer lifecycle events are
// published under iroh/ (see Topics). The broker holds a retained
// online/offline status on iroh/system/status, with a Last Will so a crash
// is visible to subscribers.
//
// The broker is optional: when it cannot be reached Core runs without the
// bus and logs a warning.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishJSON(mqtt.Topics{}.DTMFState(), snapshot, true)
package mqtt
