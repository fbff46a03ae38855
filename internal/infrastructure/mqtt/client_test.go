package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iroh-home/iroh-core/internal/infrastructure/config"
)

// testConfig targets a local Mosquitto at 127.0.0.1:1883.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "iroh-test-" + time.Now().Format("150405.000000"),
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// requireBroker skips the test when no broker is listening.
func requireBroker(t *testing.T) *Client {
	t.Helper()
	cfg := testConfig()
	conn, err := net.DialTimeout("tcp", brokerURL(cfg)[len("tcp://"):], 200*time.Millisecond)
	if err != nil {
		t.Skipf("mqtt broker not available: %v", err)
	}
	conn.Close()

	c, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // test cleanup
	return c
}

// =============================================================================
// Offline Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"SystemStatus", topics.SystemStatus(), "iroh/system/status"},
		{"PhoneLine", topics.PhoneLine(), "iroh/phone/line"},
		{"PhoneEvent", topics.PhoneEvent("dtmf"), "iroh/phone/event/dtmf"},
		{"DTMFState", topics.DTMFState(), "iroh/dtmf/state"},
		{"DTMFTransition", topics.DTMFTransition(), "iroh/dtmf/transition"},
		{"DTMFHandler", topics.DTMFHandler("lights_on"), "iroh/dtmf/handler/lights_on"},
		{"TimerEvent", topics.TimerEvent("abc", "completed"), "iroh/timer/abc/completed"},
		{"CommandState", topics.CommandState(), "iroh/command/state"},
		{"AllPhoneEvents", topics.AllPhoneEvents(), "iroh/phone/event/+"},
		{"AllTimerEvents", topics.AllTimerEvents(), "iroh/timer/+/+"},
		{"AllTopics", topics.AllTopics(), "iroh/#"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestBrokerURL(t *testing.T) {
	cfg := testConfig()
	if got := brokerURL(cfg); got != "tcp://127.0.0.1:1883" {
		t.Errorf("brokerURL() = %q", got)
	}
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	if got := brokerURL(cfg); got != "ssl://127.0.0.1:8883" {
		t.Errorf("brokerURL(tls) = %q", got)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "iroh", Password: "secret"}
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)
	if opts.ClientID != cfg.Broker.ClientID {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "iroh" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("auto-reconnect and clean session should be enabled")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not applied")
	}
	if !opts.WillEnabled || opts.WillTopic != "iroh/system/status" || !opts.WillRetained {
		t.Errorf("LWT = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}

	var will StatusMessage
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("decoding will payload: %v", err)
	}
	if will.Status != StatusOffline || will.Reason != "unexpected_disconnect" {
		t.Errorf("will = %+v", will)
	}
}

func TestDisconnectedClientRejectsOperations(t *testing.T) {
	c := newClient(testConfig())
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish", c.Publish("iroh/x", []byte("1"), 1, false), ErrNotConnected},
		{"publish empty topic", c.Publish("", nil, 0, false), ErrInvalidTopic},
		{"publish bad qos", c.Publish("iroh/x", nil, 3, false), ErrInvalidQoS},
		{"publish too large", c.Publish("iroh/x", make([]byte, maxPayloadSize+1), 0, false), ErrPublishFailed},
		{"publish json", c.PublishJSON("iroh/x", map[string]int{"a": 1}, false), ErrNotConnected},
		{"publish json unencodable", c.PublishJSON("iroh/x", make(chan int), false), ErrPublishFailed},
		{"subscribe", c.Subscribe("iroh/#", 1, handler), ErrNotConnected},
		{"subscribe nil handler", c.Subscribe("iroh/#", 1, nil), ErrSubscribeFailed},
		{"subscribe bad qos", c.Subscribe("iroh/#", 5, handler), ErrInvalidQoS},
		{"unsubscribe", c.Unsubscribe("iroh/#"), ErrNotConnected},
		{"unsubscribe empty", c.Unsubscribe(""), ErrInvalidTopic},
		{"health", c.HealthCheck(context.Background()), ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if c.IsConnected() {
		t.Error("IsConnected() = true for a client that never connected")
	}
	if c.SubscriptionCount() != 0 || c.HasSubscription("iroh/#") {
		t.Error("failed subscriptions must not be tracked")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	c := newClient(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestCloseNil(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, level+" "+msg)
}

func (l *recordingLogger) Debug(msg string, _ ...any) { l.add("DEBUG", msg) }
func (l *recordingLogger) Info(msg string, _ ...any)  { l.add("INFO", msg) }
func (l *recordingLogger) Warn(msg string, _ ...any)  { l.add("WARN", msg) }
func (l *recordingLogger) Error(msg string, _ ...any) { l.add("ERROR", msg) }

func TestDispatchRecoversAndLogs(t *testing.T) {
	c := newClient(testConfig())
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "iroh/command/state", nil)
	c.dispatch(func(string, []byte) error { panic("boom") }, "iroh/command/state", nil)

	want := []string{"WARN mqtt handler returned error", "ERROR mqtt handler panic recovered"}
	if strings.Join(logger.entries, ",") != strings.Join(want, ",") {
		t.Errorf("log entries = %v, want %v", logger.entries, want)
	}
}

// =============================================================================
// Broker Tests
// =============================================================================

func TestBroker_PublishSubscribeRoundtrip(t *testing.T) {
	c := requireBroker(t)
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	received := make(chan string, 1)
	topic := Topics{}.TimerEvent("roundtrip", "created")
	err := c.Subscribe(Topics{}.AllTimerEvents(), 1, func(topic string, payload []byte) error {
		received <- topic + " " + string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !c.HasSubscription(Topics{}.AllTimerEvents()) || c.SubscriptionCount() != 1 {
		t.Fatal("subscription not tracked")
	}

	if err := c.PublishJSON(topic, map[string]string{"name": "tea"}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case got := <-received:
		if got != topic+` {"name":"tea"}` {
			t.Errorf("received %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("message not received")
	}

	if err := c.Unsubscribe(Topics{}.AllTimerEvents()); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Error("subscription still tracked after Unsubscribe")
	}
}

func TestBroker_CloseDisconnects(t *testing.T) {
	c := requireBroker(t)
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}
