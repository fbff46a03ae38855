package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iroh-home/iroh-core/internal/infrastructure/mqtt"
)

// Subscriber registers broker subscriptions.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// StateSetter forces an engine transition.
type StateSetter interface {
	TransitionTo(ctx context.Context, state string) error
}

// SubscribeCommands listens on iroh/command/state and forwards each
// {"state": "..."} payload to the engine. Handler errors are logged by the
// broker client; ctx bounds every forwarded transition.
func SubscribeCommands(ctx context.Context, sub Subscriber, engine StateSetter, logger Logger) error {
	if logger == nil {
		logger = noopLogger{}
	}
	topic := mqtt.Topics{}.CommandState()
	err := sub.Subscribe(topic, 1, func(_ string, payload []byte) error {
		cmd, err := ParseStateCommand(payload)
		if err != nil {
			return err
		}
		logger.Info("state command received", "state", cmd.State)
		if err := engine.TransitionTo(ctx, cmd.State); err != nil {
			return fmt.Errorf("forcing state %q: %w", cmd.State, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return nil
}

// ParseStateCommand decodes a state command payload.
func ParseStateCommand(payload []byte) (StateCommand, error) {
	var cmd StateCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return StateCommand{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	if cmd.State == "" {
		return StateCommand{}, fmt.Errorf("%w: state is required", ErrInvalidCommand)
	}
	return cmd, nil
}
