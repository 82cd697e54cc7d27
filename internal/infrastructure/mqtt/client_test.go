package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/config"
)

// =============================================================================
// In-memory paho fakes
// =============================================================================

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakePublish struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho implements pahomqtt.Client without a network.
type fakePaho struct {
	mu         sync.Mutex
	connected  bool
	publishErr error
	published  []fakePublish
	subscribed map[string]pahomqtt.MessageHandler
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, subscribed: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }
func (f *fakePaho) Connect() pahomqtt.Token {
	return newFakeToken(nil)
}
func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}
func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return newFakeToken(f.publishErr)
	}
	b, _ := payload.([]byte)
	f.published = append(f.published, fakePublish{topic: topic, qos: qos, retained: retained, payload: b})
	return newFakeToken(nil)
}
func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	f.subscribed[topic] = callback
	f.mu.Unlock()
	return newFakeToken(nil)
}
func (f *fakePaho) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return newFakeToken(nil)
}
func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	for _, t := range topics {
		delete(f.subscribed, t)
	}
	f.mu.Unlock()
	return newFakeToken(nil)
}
func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}
func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func (f *fakePaho) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

// deliver simulates the broker routing a message to a subscribed filter.
func (f *fakePaho) deliver(filter string, msg pahomqtt.Message) {
	f.mu.Lock()
	cb := f.subscribed[filter]
	f.mu.Unlock()
	if cb != nil {
		cb(f, msg)
	}
}

type fakeMessage struct {
	topic     string
	payload   []byte
	retained  bool
	duplicate bool
	qos       byte
}

func (m fakeMessage) Duplicate() bool   { return m.duplicate }
func (m fakeMessage) Qos() byte         { return m.qos }
func (m fakeMessage) Retained() bool    { return m.retained }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func newFakeClient(breaker config.BreakerConfig) (*Client, *fakePaho) {
	fake := newFakePaho()
	c := &Client{
		client:        fake,
		cfg:           config.MQTTConfig{Broker: config.MQTTBrokerConfig{ClientID: "unit"}},
		subscriptions: make(map[string]subscription),
		connected:     true,
		breaker:       newPublishBreaker("unit", breaker),
	}
	return c, fake
}

// =============================================================================
// Unit tests (no broker)
// =============================================================================

func TestPublish_Validation(t *testing.T) {
	c, fake := newFakeClient(config.BreakerConfig{})

	tests := []struct {
		name    string
		topic   string
		qos     byte
		payload []byte
		wantErr error
	}{
		{"empty topic", "", 0, []byte("x"), ErrInvalidTopic},
		{"wildcard topic", "device/+/info", 0, []byte("x"), ErrInvalidTopic},
		{"invalid qos", "device/d/info", 3, []byte("x"), ErrInvalidQoS},
		{"too large", "device/d/info", 0, make([]byte, maxPayloadSize+1), ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if fake.publishCount() != 0 {
		t.Errorf("invalid publishes reached paho: %d", fake.publishCount())
	}
}

func TestPublish_Success(t *testing.T) {
	c, fake := newFakeClient(config.BreakerConfig{})

	if err := c.Publish("device/d/action/switch", []byte(`{}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := c.PublishRetained("device/d/info", []byte(`{}`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	if len(fake.published) != 2 {
		t.Fatalf("published %d messages, want 2", len(fake.published))
	}
	if p := fake.published[0]; p.qos != 1 || p.retained {
		t.Errorf("action publish = %+v, want qos 1 not retained", p)
	}
	if p := fake.published[1]; !p.retained {
		t.Errorf("info publish = %+v, want retained", p)
	}
}

func TestPublish_Disconnected(t *testing.T) {
	c, fake := newFakeClient(config.BreakerConfig{})
	fake.Disconnect(0)

	if err := c.Publish("device/d/info", []byte("x"), 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_BreakerTrips(t *testing.T) {
	c, fake := newFakeClient(config.BreakerConfig{
		Enabled:             true,
		ConsecutiveFailures: 2,
		OpenTimeout:         time.Minute,
	})
	fake.publishErr = errors.New("broker gone")

	for i := 0; i < 2; i++ {
		if err := c.Publish("device/d/event", []byte("x"), 0, false); !errors.Is(err, ErrPublishFailed) {
			t.Fatalf("Publish() #%d error = %v, want ErrPublishFailed", i, err)
		}
	}

	if c.BreakerState() != "open" {
		t.Fatalf("BreakerState() = %q, want open", c.BreakerState())
	}

	fake.mu.Lock()
	fake.publishErr = nil
	fake.mu.Unlock()

	if err := c.Publish("device/d/event", []byte("x"), 0, false); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Publish() with open breaker error = %v, want ErrCircuitOpen", err)
	}
	if fake.publishCount() != 0 {
		t.Errorf("publish reached paho while breaker open")
	}
}

func TestBreakerState_Disabled(t *testing.T) {
	c, _ := newFakeClient(config.BreakerConfig{Enabled: false})
	if c.BreakerState() != "disabled" {
		t.Errorf("BreakerState() = %q, want disabled", c.BreakerState())
	}
}

func TestSubscribe_DeliversMessageFlags(t *testing.T) {
	c, fake := newFakeClient(config.BreakerConfig{})

	got := make(chan Message, 1)
	err := c.Subscribe("device/+/info", 0, func(msg Message) error {
		got <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !c.HasSubscription("device/+/info") || c.SubscriptionCount() != 1 {
		t.Fatal("subscription not tracked")
	}

	fake.deliver("device/+/info", fakeMessage{
		topic:     "device/device001/info",
		payload:   []byte(`{"deviceId":"device001"}`),
		retained:  true,
		duplicate: true,
		qos:       1,
	})

	select {
	case msg := <-got:
		if msg.Topic != "device/device001/info" || !msg.Retained || !msg.Duplicate || msg.QoS != 1 {
			t.Errorf("handler got %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}

	if err := c.Unsubscribe("device/+/info"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Error("subscription still tracked after Unsubscribe")
	}
}

func TestUnsubscribe_UnknownFilter(t *testing.T) {
	c, fake := newFakeClient(config.BreakerConfig{})
	fake.subscribed["device/+/info"] = func(pahomqtt.Client, pahomqtt.Message) {}

	// Not tracked by this client, so the broker is never asked.
	if err := c.Unsubscribe("device/+/info"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	fake.mu.Lock()
	_, still := fake.subscribed["device/+/info"]
	fake.mu.Unlock()
	if !still {
		t.Error("unknown filter was forwarded to the broker")
	}

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
}

func TestStats(t *testing.T) {
	c, _ := newFakeClient(config.BreakerConfig{
		Enabled:             true,
		ConsecutiveFailures: 3,
		OpenTimeout:         time.Minute,
	})
	noop := func(Message) error { return nil }
	for _, filter := range []string{"device/+/info", "device/+/telemetry/#"} {
		if err := c.Subscribe(filter, 0, noop); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", filter, err)
		}
	}

	got := c.Stats()
	want := Stats{ClientID: "unit", Connected: true, Subscriptions: 2, Breaker: "closed"}
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}

	_ = c.Unsubscribe("device/+/info")
	if n := c.Stats().Subscriptions; n != 1 {
		t.Errorf("Subscriptions = %d after Unsubscribe, want 1", n)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c, _ := newFakeClient(config.BreakerConfig{})
	noop := func(Message) error { return nil }

	if err := c.Subscribe("", 0, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty filter error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("device/#/info", 0, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("malformed filter error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("device/+/info", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("qos 3 error = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("device/+/info", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v, want ErrSubscribeFailed", err)
	}
}

func TestDispatch_RecoversPanicAndLogsErrors(t *testing.T) {
	c, _ := newFakeClient(config.BreakerConfig{})
	logger := &recordingLogger{}
	c.SetLogger(logger)

	c.dispatch(func(Message) error { panic("boom") }, Message{Topic: "device/d/info"})
	c.dispatch(func(Message) error { return errors.New("bad payload") }, Message{Topic: "device/d/info"})

	if len(logger.errors) != 1 {
		t.Errorf("logged %d errors, want 1 for the panic", len(logger.errors))
	}
	if len(logger.warns) != 1 {
		t.Errorf("logged %d warnings, want 1 for the handler error", len(logger.warns))
	}
}

func TestHandleConnect_RestoresSubscriptionsAndPublishesPresence(t *testing.T) {
	c, fake := newFakeClient(config.BreakerConfig{})
	c.subscriptions["device/d/action/switch"] = subscription{
		topic:   "device/d/action/switch",
		qos:     1,
		handler: func(Message) error { return nil },
	}

	called := make(chan struct{}, 1)
	c.SetOnConnect(func() { called <- struct{}{} })

	c.handleConnect()

	if _, ok := fake.subscribed["device/d/action/switch"]; !ok {
		t.Error("subscription not restored on connect")
	}
	if len(fake.published) != 1 || fake.published[0].topic != "clients/unit/status" || !fake.published[0].retained {
		t.Errorf("presence publish = %+v", fake.published)
	}
	select {
	case <-called:
	default:
		t.Error("OnConnect callback not invoked")
	}
}

func TestHandleDisconnect(t *testing.T) {
	c, _ := newFakeClient(config.BreakerConfig{})

	var gotErr error
	c.SetOnDisconnect(func(err error) { gotErr = err })
	c.handleDisconnect(errors.New("network down"))

	if c.IsConnected() {
		t.Error("IsConnected() = true after disconnect")
	}
	if gotErr == nil {
		t.Error("OnDisconnect callback not invoked")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Auth.Username = "user"
	cfg.Auth.Password = "pass"
	cfg.Reconnect.Auto = false

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want ssl://127.0.0.1:1883", opts.Servers)
	}
	if opts.Username != "user" || opts.Password != "pass" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if opts.AutoReconnect {
		t.Error("AutoReconnect = true, want false")
	}
	if opts.ConnectRetry {
		t.Error("ConnectRetry = true, want false")
	}

	configureLWT(opts, "unit")
	if !opts.WillEnabled || opts.WillTopic != "clients/unit/status" || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will = %q qos=%d retained=%v", opts.WillTopic, opts.WillQos, opts.WillRetained)
	}
}

func TestNewClientID(t *testing.T) {
	a := NewClientID("controller")
	b := NewClientID("controller")
	if a == b {
		t.Errorf("NewClientID returned the same id twice: %q", a)
	}
	if len(a) != len("controller-")+8 {
		t.Errorf("NewClientID() = %q, want controller-<8 chars>", a)
	}
}

// =============================================================================
// Broker tests (skipped without a broker at 127.0.0.1:1883)
// =============================================================================

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: NewClientID("mqtt-test"),
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			Auto:         true,
			InitialDelay: 1,
			MaxDelay:     5,
			MaxAttempts:  1,
		},
	}
}

func connectOrSkip(t *testing.T, cfg config.MQTTConfig) *Client {
	t.Helper()
	client, err := Connect(cfg)
	if err != nil {
		t.Skipf("MQTT broker not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConnectInvalidBroker(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999
	cfg.Reconnect.MaxAttempts = 2
	cfg.Reconnect.InitialDelay = 0

	_, err := Connect(cfg)
	if err == nil {
		t.Fatal("Connect() expected error for invalid broker")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectContext_Cancelled(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999
	cfg.Reconnect.MaxAttempts = 100

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ConnectContext(ctx, cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("ConnectContext() error = %v, want ErrConnectionFailed", err)
	}
}

func TestPublishSubscribeRoundtrip(t *testing.T) {
	client := connectOrSkip(t, testConfig())

	topic := "device/mqtt-test-" + client.ClientID() + "/telemetry/temperature"
	received := make(chan Message, 1)

	err := client.Subscribe("device/+/telemetry/#", 1, func(msg Message) error {
		if msg.Topic == topic {
			received <- msg
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := client.Publish(topic, []byte(`{"value":38}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if string(msg.Payload) != `{"value":38}` {
			t.Errorf("payload = %s", msg.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestRetainedDelivery(t *testing.T) {
	client := connectOrSkip(t, testConfig())

	topic := "device/" + client.ClientID() + "/info"
	if err := client.PublishRetained(topic, []byte(`{"deviceId":"x"}`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Publish(topic, nil, 1, true) })

	late := connectOrSkip(t, testConfig())
	received := make(chan Message, 1)
	if err := late.Subscribe(topic, 1, func(msg Message) error {
		received <- msg
		return nil
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case msg := <-received:
		if !msg.Retained {
			t.Error("late subscriber got a non-retained message, want retained")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for retained message")
	}
}
