package mqtt

import (
	"encoding/json"
	"fmt"
)

// maxPayloadSize caps message payloads at 1MB.
const maxPayloadSize = 1 << 20

// Publish sends a message to the given topic.
//
// Retained messages are stored by the broker and handed to new subscribers.
// Use them for state topics (iroh/dtmf/state, iroh/system/status), not for
// one-off events.
//
// Parameters:
//   - topic: Full topic name, no wildcards
//   - payload: Message body, at most 1MB
//   - qos: Delivery guarantee (0, 1, or 2)
//   - retained: Whether the broker keeps the message for new subscribers
//
// Returns:
//   - error: nil on success, or wrapped ErrPublishFailed/ErrNotConnected
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	// Validate inputs
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	// Check connection state
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Publish and wait for the broker acknowledgement
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishJSON marshals v and publishes it with the configured QoS.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrPublishFailed, err)
	}
	return c.Publish(topic, payload, byte(c.cfg.QoS), retained)
}
