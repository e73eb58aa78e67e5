package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anhhung04/plant-care/internal/greenhouse"
)

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// mockStore returns a fixed set of greenhouses.
type mockStore struct {
	mu          sync.Mutex
	greenhouses []greenhouse.Greenhouse
	err         error
	sinces      []time.Time
}

func (m *mockStore) RecentlyUpdated(_ context.Context, since time.Time) ([]greenhouse.Greenhouse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinces = append(m.sinces, since)
	if m.err != nil {
		return nil, m.err
	}
	return m.greenhouses, nil
}

func (m *mockStore) set(g ...greenhouse.Greenhouse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.greenhouses = g
}

type controlCall struct {
	GreenhouseID string
	FieldIndex   int
	Device       greenhouse.Device
	Value        int
}

// mockDispatcher captures all control commands.
type mockDispatcher struct {
	mu     sync.Mutex
	calls  []controlCall
	failOn greenhouse.Device
}

func (m *mockDispatcher) SendControl(_ context.Context, gh string, idx int, device greenhouse.Device, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && device == m.failOn {
		return errors.New("control endpoint unreachable")
	}
	m.calls = append(m.calls, controlCall{gh, idx, device, value})
	return nil
}

func (m *mockDispatcher) setFailOn(device greenhouse.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn = device
}

func (m *mockDispatcher) getCalls() []controlCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]controlCall(nil), m.calls...)
}

type notification struct{ Title, Content string }

type mockNotifier struct {
	mu    sync.Mutex
	sent  []notification
	fails bool
}

func (m *mockNotifier) Notify(_ context.Context, title, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails {
		return errors.New("backend down")
	}
	m.sent = append(m.sent, notification{title, content})
	return nil
}

func (m *mockNotifier) getSent() []notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification(nil), m.sent...)
}

// mockPredictor answers a fixed state per device and records the features.
type mockPredictor struct {
	mu       sync.Mutex
	answers  map[greenhouse.Device]string
	features []map[string]float64
	panicOn  greenhouse.Device
}

func (m *mockPredictor) Predict(_ context.Context, device greenhouse.Device, features map[string]float64) (string, error) {
	if device == m.panicOn && device != "" {
		panic("model exploded")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features = append(m.features, features)
	answer, ok := m.answers[device]
	if !ok {
		return "", errors.New("no model for device")
	}
	return answer, nil
}

type wsBroadcast struct {
	Channel string
	Payload any
}

// mockWSHub captures all broadcasts.
type mockWSHub struct {
	mu         sync.Mutex
	broadcasts []wsBroadcast
}

func (m *mockWSHub) Broadcast(channel string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, wsBroadcast{channel, payload})
}

func (m *mockWSHub) channel(name string) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, b := range m.broadcasts {
		if b.Channel == name {
			out = append(out, b.Payload.(Event))
		}
	}
	return out
}

// ─── Helpers ────────────────────────────────────────────────────────────────

type testEnv struct {
	reconciler *Reconciler
	clock      *fakeClock
	store      *mockStore
	dispatcher *mockDispatcher
	notifier   *mockNotifier
	predictor  *mockPredictor
	hub        *mockWSHub
}

func setupReconciler(t *testing.T, now time.Time) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:      newFakeClock(now),
		store:      &mockStore{},
		dispatcher: &mockDispatcher{},
		notifier:   &mockNotifier{},
		predictor:  &mockPredictor{answers: map[greenhouse.Device]string{}},
		hub:        &mockWSHub{},
	}
	env.reconciler = NewReconciler(Deps{
		Store:      env.store,
		Dispatcher: env.dispatcher,
		Predictor:  env.predictor,
		Notifier:   env.notifier,
		Hub:        env.hub,
	}, Options{
		Interval:    time.Minute,
		CallTimeout: time.Second,
		Workers:     2,
		Location:    time.UTC,
		Now:         env.clock.Now,
	})
	t.Cleanup(env.reconciler.Scheduler().Stop)
	return env
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func intPtr(v int) *int { return &v }

func reading(v float64, ts time.Time) []greenhouse.Reading {
	return []greenhouse.Reading{{Value: v, Timestamp: ts}}
}

// testField builds a present field with the given series and device configs.
func testField(index int, series map[greenhouse.Channel][]greenhouse.Reading, devices map[greenhouse.Device]greenhouse.DeviceConfig) greenhouse.Field {
	if series == nil {
		series = map[greenhouse.Channel][]greenhouse.Reading{}
	}
	if devices == nil {
		devices = map[greenhouse.Device]greenhouse.DeviceConfig{}
	}
	return greenhouse.Field{
		Index:        index,
		Present:      true,
		Series:       series,
		Devices:      devices,
		ConfigErrors: map[greenhouse.Device]error{},
	}
}

func manualConfig(minutes *int) greenhouse.DeviceConfig {
	return greenhouse.DeviceConfig{Mode: greenhouse.ModeManual, Manual: &greenhouse.ManualConfig{TurnOffAfter: minutes}}
}

func scheduledConfig(onAt string, offAfter int, repeat greenhouse.Repeat, dates ...string) greenhouse.DeviceConfig {
	c, err := greenhouse.ParseClockTime(onAt)
	if err != nil {
		panic(err)
	}
	s := &greenhouse.ScheduledConfig{TurnOnAt: c, TurnOffAfter: offAfter, Repeat: repeat}
	for _, d := range dates {
		parsed, err := greenhouse.ParseDate(d)
		if err != nil {
			panic(err)
		}
		s.Dates = append(s.Dates, parsed)
	}
	return greenhouse.DeviceConfig{Mode: greenhouse.ModeScheduled, Scheduled: s}
}

func automaticConfig() greenhouse.DeviceConfig {
	return greenhouse.DeviceConfig{Mode: greenhouse.ModeAutomatic}
}
