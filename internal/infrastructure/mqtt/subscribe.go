package mqtt

import "fmt"

// Subscribe registers a handler for messages on the given topic.
//
// Topics may carry MQTT wildcards:
//   - + (single-level): "iroh/phone/event/+" matches every phone event type
//   - # (multi-level): "iroh/#" matches every Iroh topic
//
// The handler runs on paho's delivery goroutine, so it must return quickly.
// The subscription is tracked and restored after a reconnect.
//
// Parameters:
//   - topic: Topic or wildcard pattern to subscribe to
//   - qos: Maximum QoS for delivered messages (0, 1, or 2)
//   - handler: Callback invoked once per message
//
// Returns:
//   - error: nil on success, or wrapped ErrSubscribeFailed/ErrNotConnected
//
// Example:
//
//	err := client.Subscribe(mqtt.Topics{}.AllTimerEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("timer event: %s = %s", topic, payload)
//	        return nil
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	// Validate inputs
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	// Check connection state
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Track before subscribing so a reconnect mid-call restores it
	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	// Subscribe with the panic-recovering wrapper
	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	var err error
	switch {
	case !token.WaitTimeout(defaultPublishTimeout):
		err = fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	case token.Error() != nil:
		err = fmt.Errorf("%w: %w", ErrSubscribeFailed, token.Error())
	}
	if err != nil {
		// Forget the topic so it is not restored on reconnect
		c.subMu.Lock()
		delete(c.subscriptions, topic)
		c.subMu.Unlock()
		return err
	}
	return nil
}

// Unsubscribe removes the subscription for a topic.
//
// The topic must match the string passed to Subscribe exactly, wildcards
// included. Messages already in flight may still reach the handler.
//
// Parameters:
//   - topic: The topic as it was subscribed
//
// Returns:
//   - error: nil on success, or wrapped ErrUnsubscribeFailed/ErrNotConnected
func (c *Client) Unsubscribe(topic string) error {
	// Validate input
	if topic == "" {
		return ErrInvalidTopic
	}

	// Check connection state
	if !c.IsConnected() {
		return ErrNotConnected
	}

	// Stop tracking first so a reconnect does not bring it back
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()

	// Tell the broker
	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}
	return nil
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription reports whether topic, as written, is subscribed.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subscriptions[topic]
	return ok
}
