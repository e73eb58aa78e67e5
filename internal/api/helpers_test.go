package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/anhhung04/plant-care/internal/auth"
	"github.com/anhhung04/plant-care/internal/automation"
	"github.com/anhhung04/plant-care/internal/greenhouse"
	"github.com/anhhung04/plant-care/internal/infrastructure/config"
	"github.com/anhhung04/plant-care/internal/infrastructure/database"
	"github.com/anhhung04/plant-care/internal/infrastructure/logging"
	"github.com/anhhung04/plant-care/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// ─── Mock Dependencies ──────────────────────────────────────────────────────

type actuateCall struct {
	GreenhouseID string
	FieldIndex   int
	Device       greenhouse.Device
	Action       automation.Action
}

// mockReconciler records operator commands and returns canned tick results.
type mockReconciler struct {
	mu         sync.Mutex
	tickResult automation.TickResult
	tickErr    error
	ticks      int
	actuateErr error
	actuations []actuateCall
}

func (m *mockReconciler) Tick(context.Context) (automation.TickResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
	return m.tickResult, m.tickErr
}

func (m *mockReconciler) Actuate(_ context.Context, gh string, idx int, device greenhouse.Device, action automation.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.actuateErr != nil {
		return m.actuateErr
	}
	m.actuations = append(m.actuations, actuateCall{gh, idx, device, action})
	return nil
}

func (m *mockReconciler) getActuations() []actuateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]actuateCall(nil), m.actuations...)
}

type mockJobs struct {
	pending []automation.Job
	recent  []automation.Record
}

func (m *mockJobs) Pending() []automation.Job   { return m.pending }
func (m *mockJobs) Recent() []automation.Record { return m.recent }

type mockChecker struct{ err error }

func (m mockChecker) HealthCheck(context.Context) error { return m.err }

// ─── Helpers ────────────────────────────────────────────────────────────────

type testEnv struct {
	server     *Server
	router     http.Handler
	store      *greenhouse.SQLiteRepository
	reconciler *mockReconciler
	jobs       *mockJobs
}

// testServer creates a Server over an in-memory field store.
func testServer(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	log := testLogger()
	env := &testEnv{
		store:      greenhouse.NewSQLiteRepository(db.DB),
		reconciler: &mockReconciler{},
		jobs:       &mockJobs{},
	}

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testSecret, AccessTokenTTL: 15},
		},
		Logger:     log,
		Store:      env.store,
		Reconciler: env.reconciler,
		Jobs:       env.jobs,
		Checks:     map[string]HealthChecker{"database": db},
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	hubCtx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(hubCtx)

	env.server = srv
	env.router = srv.buildRouter()
	return env
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "text"}, "test", io.Discard)
}

func token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken("test-"+string(role), role, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	return tok
}

// do sends a request through the router with a bearer token for role.
// An empty role sends no Authorization header.
func (e *testEnv) do(t *testing.T, method, path string, role auth.Role, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, role))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seed(t *testing.T, gh string, idx int, ch greenhouse.Channel, value float64, ts time.Time) {
	t.Helper()
	err := e.store.AppendReading(context.Background(), greenhouse.ReadingInput{
		Owner:        "alice",
		GreenhouseID: gh,
		FieldIndex:   idx,
		Channel:      ch,
		Reading:      greenhouse.Reading{Value: value, Unit: ch.DefaultUnit(), Timestamp: ts},
	})
	if err != nil {
		t.Fatalf("AppendReading: %v", err)
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

var errBoom = errors.New("boom")
