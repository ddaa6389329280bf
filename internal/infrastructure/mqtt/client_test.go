package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/nerrad567/petcare-core/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "petcare-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// disconnectedClient returns a Client that was never connected.
func disconnectedClient() *Client {
	return &Client{
		cfg:           testConfig(),
		subscriptions: make(map[string]subscription),
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"DeviceReadings", topics.DeviceReadings("7"), "petcare/devices/7/readings"},
		{"AllDeviceReadings", topics.AllDeviceReadings(), "petcare/devices/+/readings"},
		{"DeviceCommand", topics.DeviceCommand("7"), "petcare/devices/7/command"},
		{"DeviceStatus", topics.DeviceStatus("feeder-1"), "petcare/devices/feeder-1/status"},
		{"SystemStatus", topics.SystemStatus(), "petcare/system/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestParseDeviceTopic(t *testing.T) {
	tests := []struct {
		topic    string
		wantID   string
		wantKind string
		wantOK   bool
	}{
		{"petcare/devices/7/readings", "7", KindReadings, true},
		{"petcare/devices/abc/command", "abc", KindCommand, true},
		{"petcare/devices//readings", "", "", false},
		{"petcare/devices/7", "", "", false},
		{"petcare/devices/7/readings/extra", "", "", false},
		{"petcare/system/status", "", "", false},
		{"other/devices/7/readings", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, kind, ok := ParseDeviceTopic(tt.topic)
			if ok != tt.wantOK || id != tt.wantID || kind != tt.wantKind {
				t.Errorf("ParseDeviceTopic(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.topic, id, kind, ok, tt.wantID, tt.wantKind, tt.wantOK)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "feeder"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "petcare-test" {
		t.Errorf("ClientID = %q, want petcare-test", opts.ClientID)
	}
	if opts.Username != "feeder" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want feeder/secret", opts.Username, opts.Password)
	}
	if !opts.WillEnabled || opts.WillTopic != "petcare/system/status" || !opts.WillRetained {
		t.Errorf("will = (%v, %q, retained=%v), want enabled retained system status",
			opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if !strings.Contains(string(opts.WillPayload), "unexpected_disconnect") {
		t.Errorf("WillPayload = %s, want unexpected_disconnect reason", opts.WillPayload)
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers[0] = %v, want ssl://127.0.0.1:8883", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLSConfig not set with minimum version")
	}
}

func TestBuildStatusPayload(t *testing.T) {
	var got statusPayload
	if err := json.Unmarshal(buildStatusPayload("core-1", "offline", "graceful_shutdown"), &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.Status != "offline" || got.ClientID != "core-1" || got.Reason != "graceful_shutdown" {
		t.Errorf("payload = %+v", got)
	}
	if got.Timestamp == "" {
		t.Error("payload missing timestamp")
	}

	online := string(buildStatusPayload("core-1", "online", ""))
	if strings.Contains(online, "reason") {
		t.Errorf("online payload should omit reason: %s", online)
	}
}

func TestValidation(t *testing.T) {
	c := disconnectedClient()
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"publish empty topic", c.Publish("", []byte("x"), 1, false), ErrInvalidTopic},
		{"publish invalid qos", c.Publish("petcare/x", []byte("x"), 3, false), ErrInvalidQoS},
		{"publish too large", c.Publish("petcare/x", make([]byte, maxPayloadSize+1), 1, false), ErrPublishFailed},
		{"publish disconnected", c.Publish("petcare/x", []byte("x"), 1, false), ErrNotConnected},
		{"publish json disconnected", c.PublishJSON("petcare/x", map[string]int{"grams": 20}), ErrNotConnected},
		{"publish json unencodable", c.PublishJSON("petcare/x", make(chan int)), ErrPublishFailed},
		{"subscribe empty topic", c.Subscribe("", 1, noop), ErrInvalidTopic},
		{"subscribe invalid qos", c.Subscribe("petcare/x", 3, noop), ErrInvalidQoS},
		{"subscribe nil handler", c.Subscribe("petcare/x", 1, nil), ErrSubscribeFailed},
		{"subscribe disconnected", c.Subscribe("petcare/x", 1, noop), ErrNotConnected},
		{"unsubscribe empty topic", c.Unsubscribe(""), ErrInvalidTopic},
		{"unsubscribe disconnected", c.Unsubscribe("petcare/x"), ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0 after failed subscribes", c.SubscriptionCount())
	}
}

func TestHealthCheck(t *testing.T) {
	c := disconnectedClient()

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestCloseNeverConnected(t *testing.T) {
	if err := disconnectedClient().Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	c := disconnectedClient()
	noop := func(string, []byte) error { return nil }

	c.track(subscription{topic: "petcare/devices/+/readings", qos: 1, handler: noop})
	c.track(subscription{topic: "petcare/devices/+/status", qos: 1, handler: noop})

	if c.SubscriptionCount() != 2 {
		t.Errorf("SubscriptionCount() = %d, want 2", c.SubscriptionCount())
	}
	if !c.HasSubscription("petcare/devices/+/readings") {
		t.Error("HasSubscription(readings) = false")
	}

	c.untrack("petcare/devices/+/readings")
	if c.HasSubscription("petcare/devices/+/readings") {
		t.Error("HasSubscription(readings) = true after untrack")
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errs = append(l.errs, msg)
	l.mu.Unlock()
}

func TestDispatch(t *testing.T) {
	c := disconnectedClient()
	logger := &recordingLogger{}
	c.SetLogger(logger)

	var got string
	c.dispatch(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	}, "petcare/devices/1/readings", []byte("42"))
	if got != "petcare/devices/1/readings=42" {
		t.Errorf("handler saw %q", got)
	}

	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)
	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)

	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want 1 handler error", logger.warns)
	}
	if len(logger.errs) != 1 {
		t.Errorf("errors = %v, want 1 recovered panic", logger.errs)
	}
}

func TestDisconnectCallback(t *testing.T) {
	c := disconnectedClient()
	c.setConnected(true)

	var gotErr error
	c.SetOnDisconnect(func(err error) { gotErr = err })

	lost := errors.New("network down")
	c.handleDisconnect(lost)

	if !errors.Is(gotErr, lost) {
		t.Errorf("callback error = %v, want %v", gotErr, lost)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after handleDisconnect")
	}
}
