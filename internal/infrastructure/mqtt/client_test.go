package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/anhhung04/plant-care/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration for tests that do not dial.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "plantcare-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (m *mockLogger) Info(string, ...any) {}

func (m *mockLogger) Error(msg string, _ ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) Warn(msg string, _ ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "svc", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "plantcare-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "svc" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Error("expected auto-reconnect and clean session")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS config not applied")
	}
}

func TestResolveClientID(t *testing.T) {
	if got := resolveClientID("fixed"); got != "fixed" {
		t.Errorf("resolveClientID(fixed) = %q", got)
	}

	a, b := resolveClientID(""), resolveClientID("")
	if !strings.HasPrefix(a, clientIDPrefix) || len(a) != len(clientIDPrefix)+8 {
		t.Errorf("generated id = %q", a)
	}
	if a == b {
		t.Error("generated ids collide")
	}
}

func TestStatusPayload(t *testing.T) {
	var body map[string]string
	if err := json.Unmarshal([]byte(statusPayload("offline", "plantcare-test", "graceful_shutdown")), &body); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if body["status"] != "offline" || body["reason"] != "graceful_shutdown" || body["client_id"] != "plantcare-test" {
		t.Errorf("payload = %v", body)
	}

	body = nil
	if err := json.Unmarshal([]byte(statusPayload("online", "x", "")), &body); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if _, ok := body["reason"]; ok {
		t.Error("online payload carries a reason")
	}
}

func TestPublish_Validation(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("1"), 1, ErrInvalidTopic},
		{"bad qos", "gh_1.0-fan", []byte("1"), 3, ErrInvalidQoS},
		{"too large", "gh_1.0-fan", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "gh_1.0-fan", []byte("1"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe(DefaultReadingsFilter, 5, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos error = %v", err)
	}
	if err := c.Subscribe(DefaultReadingsFilter, 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe(DefaultReadingsFilter, 1, noop); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if c.SubscriptionCount() != 0 || c.HasSubscription(DefaultReadingsFilter) {
		t.Error("failed subscribe was tracked")
	}
}

func TestClose_NeverConnected(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
}

func TestDispatch_RecoversPanicsAndLogsErrors(t *testing.T) {
	logger := &mockLogger{}
	c := &Client{}
	c.SetLogger(logger)

	c.dispatch(func(string, []byte) error { panic("boom") }, "a/groups/b/0-temp", nil)
	c.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "a/groups/b/0-temp", nil)
	c.dispatch(func(string, []byte) error { return nil }, "a/groups/b/0-temp", nil)

	if len(logger.errors) != 1 {
		t.Errorf("errors logged = %v, want one panic", logger.errors)
	}
	if len(logger.warns) != 1 {
		t.Errorf("warnings logged = %v, want one handler error", logger.warns)
	}
}

func TestTopics(t *testing.T) {
	topics := Topics{ControlPrefix: "farmer/feeds/"}

	if got := topics.Control("gh_1", 2, "pump"); got != "farmer/feeds/gh_1.2-pump" {
		t.Errorf("Control() = %q", got)
	}
	if got := (Topics{}).Control("gh_1", 0, "fan"); got != "gh_1.0-fan" {
		t.Errorf("Control() without prefix = %q", got)
	}
	if got := topics.Readings("alice"); got != "alice/groups/+/+" {
		t.Errorf("Readings(alice) = %q", got)
	}
	if got := topics.Readings(""); got != DefaultReadingsFilter {
		t.Errorf("Readings(\"\") = %q", got)
	}
	if got := topics.SystemStatus(); got != "plantcare/system/status" {
		t.Errorf("SystemStatus() = %q", got)
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"+/groups/+/+", "alice/groups/gh-1/0-temp", true},
		{"+/groups/+/+", "alice/groups/gh-1", false},
		{"+/groups/+/+", "alice/feeds/gh-1/0-temp", false},
		{"alice/#", "alice/groups/gh/0-temp", true},
		{"plantcare/system/status", "plantcare/system/status", true},
		{"a/b", "a/b/c", false},
	}
	for _, tt := range tests {
		if got := Matches(tt.filter, tt.topic); got != tt.want {
			t.Errorf("Matches(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}
