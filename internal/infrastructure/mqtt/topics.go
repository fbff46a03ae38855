package mqtt

import "fmt"

// TopicPrefix is the root of every Iroh topic.
const TopicPrefix = "iroh"

// Topics builds Iroh topic names.
//
//	iroh/system/status              retained online/offline (LWT)
//	iroh/phone/line                 retained hook state
//	iroh/phone/event/{type}         off_hook, on_hook, dtmf
//	iroh/dtmf/state                 retained current state
//	iroh/dtmf/transition            every transition
//	iroh/dtmf/handler/{name}        handler outcomes
//	iroh/timer/{id}/{event}         created, one_minute, completed, cancelled
//	iroh/command/state              inbound: force a state transition
type Topics struct{}

// SystemStatus returns iroh/system/status.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// PhoneLine returns iroh/phone/line.
func (Topics) PhoneLine() string {
	return TopicPrefix + "/phone/line"
}

// PhoneEvent returns iroh/phone/event/{eventType}.
func (Topics) PhoneEvent(eventType string) string {
	return fmt.Sprintf("%s/phone/event/%s", TopicPrefix, eventType)
}

// DTMFState returns iroh/dtmf/state.
func (Topics) DTMFState() string {
	return TopicPrefix + "/dtmf/state"
}

// DTMFTransition returns iroh/dtmf/transition.
func (Topics) DTMFTransition() string {
	return TopicPrefix + "/dtmf/transition"
}

// DTMFHandler returns iroh/dtmf/handler/{name}.
func (Topics) DTMFHandler(name string) string {
	return fmt.Sprintf("%s/dtmf/handler/%s", TopicPrefix, name)
}

// TimerEvent returns iroh/timer/{timerID}/{event}.
func (Topics) TimerEvent(timerID, event string) string {
	return fmt.Sprintf("%s/timer/%s/%s", TopicPrefix, timerID, event)
}

// CommandState returns iroh/command/state.
func (Topics) CommandState() string {
	return TopicPrefix + "/command/state"
}

// AllPhoneEvents matches iroh/phone/event/+.
func (Topics) AllPhoneEvents() string {
	return TopicPrefix + "/phone/event/+"
}

// AllTimerEvents matches iroh/timer/+/+.
func (Topics) AllTimerEvents() string {
	return TopicPrefix + "/timer/+/+"
}

// AllTopics matches every Iroh topic.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
