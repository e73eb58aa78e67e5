package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/anhhung04/plant-care/internal/automation"
	"github.com/anhhung04/plant-care/internal/greenhouse"
)

// capturedRequest is what a test server saw.
type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

type recordingServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
}

// newRecordingServer answers every request with status and body.
func newRecordingServer(t *testing.T, status int, body string) *recordingServer {
	t.Helper()
	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		rs.mu.Lock()
		rs.requests = append(rs.requests, capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Header: r.Header.Clone(),
			Body:   data,
		})
		rs.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body) //nolint:errcheck // test server
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) last(t *testing.T) capturedRequest {
	t.Helper()
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.requests) == 0 {
		t.Fatal("no request received")
	}
	return rs.requests[len(rs.requests)-1]
}

func TestHTTPDispatcher_SendControl(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"ok":true}`)
	d, err := NewHTTPDispatcher(srv.URL+"/", nil)
	if err != nil {
		t.Fatalf("NewHTTPDispatcher: %v", err)
	}

	if err := d.SendControl(context.Background(), "gh_1", 2, greenhouse.DevicePump, 100); err != nil {
		t.Fatalf("SendControl: %v", err)
	}

	req := srv.last(t)
	if req.Method != http.MethodPost || req.Path != "/api/v1/greenhouses/gh_1/fields/2/control" {
		t.Errorf("request = %s %s", req.Method, req.Path)
	}
	if req.Query != "device=pump&value=100" {
		t.Errorf("query = %q", req.Query)
	}
}

func TestHTTPDispatcher_Failures(t *testing.T) {
	srv := newRecordingServer(t, http.StatusBadGateway, "upstream gone")
	d, err := NewHTTPDispatcher(srv.URL, nil)
	if err != nil {
		t.Fatalf("NewHTTPDispatcher: %v", err)
	}
	if err := d.SendControl(context.Background(), "gh_1", 0, greenhouse.DeviceFan, 0); !errors.Is(err, ErrExternalCallFailed) {
		t.Errorf("non-2xx error = %v, want ErrExternalCallFailed", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.SendControl(ctx, "gh_1", 0, greenhouse.DeviceFan, 0); !errors.Is(err, ErrExternalCallFailed) {
		t.Errorf("cancelled error = %v, want ErrExternalCallFailed", err)
	}

	if _, err := NewHTTPDispatcher("  ", nil); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("empty URL error = %v, want ErrNotConfigured", err)
	}
}

type publishCall struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

type mockPublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, publishCall{topic, string(payload), qos, retained})
	return nil
}

func (m *mockPublisher) QoS() byte { return 1 }

func TestMQTTDispatcher_SendControl(t *testing.T) {
	pub := &mockPublisher{}
	d := NewMQTTDispatcher(pub, "farmer/feeds/")

	tests := []struct {
		device greenhouse.Device
		value  int
		topic  string
		want   string
	}{
		{greenhouse.DeviceFan, 100, "farmer/feeds/gh_1.0-fan", "1"},
		{greenhouse.DeviceLED, 40, "farmer/feeds/gh_1.0-led", "1"},
		{greenhouse.DevicePump, 0, "farmer/feeds/gh_1.0-pump", "0"},
	}
	for _, tt := range tests {
		if err := d.SendControl(context.Background(), "gh_1", 0, tt.device, tt.value); err != nil {
			t.Fatalf("SendControl(%s): %v", tt.device, err)
		}
	}

	if len(pub.calls) != len(tests) {
		t.Fatalf("publishes = %d, want %d", len(pub.calls), len(tests))
	}
	for i, tt := range tests {
		got := pub.calls[i]
		if got.Topic != tt.topic || got.Payload != tt.want || got.QoS != 1 || got.Retained {
			t.Errorf("publish %d = %+v, want %s %s", i, got, tt.topic, tt.want)
		}
	}
}

func TestMQTTDispatcher_Errors(t *testing.T) {
	pub := &mockPublisher{err: errors.New("not connected")}
	d := NewMQTTDispatcher(pub, "")

	if err := d.SendControl(context.Background(), "gh_1", 0, greenhouse.DeviceFan, 1); !errors.Is(err, ErrExternalCallFailed) {
		t.Errorf("publish error = %v, want ErrExternalCallFailed", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub.err = nil
	if err := d.SendControl(ctx, "gh_1", 0, greenhouse.DeviceFan, 1); !errors.Is(err, ErrExternalCallFailed) {
		t.Errorf("cancelled error = %v, want ErrExternalCallFailed", err)
	}
	if len(pub.calls) != 0 {
		t.Errorf("published despite cancelled context: %+v", pub.calls)
	}
}

func TestHTTPNotifier_Notify(t *testing.T) {
	srv := newRecordingServer(t, http.StatusCreated, "")
	n, err := NewHTTPNotifier(srv.URL, "s3cret", nil)
	if err != nil {
		t.Fatalf("NewHTTPNotifier: %v", err)
	}

	if err := n.Notify(context.Background(), "Device Control", "Turned on fan in greenhouse gh_1"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	req := srv.last(t)
	if req.Path != "/notifications" || req.Header.Get("X-Auth-Key") != "s3cret" {
		t.Errorf("request = %s, auth %q", req.Path, req.Header.Get("X-Auth-Key"))
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("content type = %q", req.Header.Get("Content-Type"))
	}
	var body map[string]string
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["title"] != "Device Control" || body["content"] != "Turned on fan in greenhouse gh_1" {
		t.Errorf("body = %v", body)
	}
}

func TestHTTPNotifier_Unauthorized(t *testing.T) {
	srv := newRecordingServer(t, http.StatusUnauthorized, `{"detail":"bad key"}`)
	n, err := NewHTTPNotifier(srv.URL, "wrong", nil)
	if err != nil {
		t.Fatalf("NewHTTPNotifier: %v", err)
	}
	if err := n.Notify(context.Background(), "t", "c"); !errors.Is(err, ErrExternalCallFailed) {
		t.Errorf("error = %v, want ErrExternalCallFailed", err)
	}
}

func TestHTTPPredictor_Predict(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `{"state":"on"}`)
	p, err := NewHTTPPredictor(srv.URL, nil)
	if err != nil {
		t.Fatalf("NewHTTPPredictor: %v", err)
	}

	state, err := p.Predict(context.Background(), greenhouse.DeviceFan, map[string]float64{"temperature": 30, "humidity": 40})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if state != "on" {
		t.Errorf("state = %q, want on", state)
	}

	req := srv.last(t)
	if req.Path != "/predict/fan" {
		t.Errorf("path = %q", req.Path)
	}
	var body struct {
		Features map[string]float64 `json:"features"`
	}
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body.Features["temperature"] != 30 || body.Features["humidity"] != 40 {
		t.Errorf("features = %v", body.Features)
	}
}

func TestHTTPPredictor_BadResponse(t *testing.T) {
	srv := newRecordingServer(t, http.StatusOK, `not json`)
	p, err := NewHTTPPredictor(srv.URL, nil)
	if err != nil {
		t.Fatalf("NewHTTPPredictor: %v", err)
	}
	if _, err := p.Predict(context.Background(), greenhouse.DeviceFan, nil); !errors.Is(err, ErrExternalCallFailed) {
		t.Errorf("error = %v, want ErrExternalCallFailed", err)
	}
}

func TestThresholdPredictor(t *testing.T) {
	p := NewThresholdPredictor(DefaultThresholds())

	tests := []struct {
		name     string
		device   greenhouse.Device
		features map[string]float64
		want     string
	}{
		{"fan hot", greenhouse.DeviceFan, map[string]float64{"temperature": 31, "humidity": 40}, "on"},
		{"fan humid", greenhouse.DeviceFan, map[string]float64{"temperature": 20, "humidity": 85}, "on"},
		{"fan mild", greenhouse.DeviceFan, map[string]float64{"temperature": 30, "humidity": 40}, "off"},
		{"pump dry", greenhouse.DevicePump, map[string]float64{"soil_moisture": 12, "temperature": 25, "humidity": 50}, "on"},
		{"pump wet", greenhouse.DevicePump, map[string]float64{"soil_moisture": 55, "temperature": 25, "humidity": 50}, "off"},
		{"led dark day", greenhouse.DeviceLED, map[string]float64{"light": 50, "minute_of_day": 7 * 60}, "on"},
		{"led bright day", greenhouse.DeviceLED, map[string]float64{"light": 900, "minute_of_day": 12 * 60}, "off"},
		{"led dark night", greenhouse.DeviceLED, map[string]float64{"light": 0, "minute_of_day": 22 * 60}, "off"},
		{"led window end", greenhouse.DeviceLED, map[string]float64{"light": 0, "minute_of_day": 20 * 60}, "off"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Predict(context.Background(), tt.device, tt.features)
			if err != nil {
				t.Fatalf("Predict: %v", err)
			}
			if got != tt.want {
				t.Errorf("Predict() = %q, want %q", got, tt.want)
			}
			if _, err := automation.ParseAction(got); err != nil {
				t.Errorf("answer %q not parseable: %v", got, err)
			}
		})
	}

	if _, err := p.Predict(context.Background(), "heater", nil); !errors.Is(err, greenhouse.ErrUnknownDevice) {
		t.Errorf("unknown device error = %v", err)
	}
}
