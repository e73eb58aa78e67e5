package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anhhung04/plant-care/internal/auth"
	"github.com/anhhung04/plant-care/internal/control"
	"github.com/anhhung04/plant-care/internal/greenhouse"
	"github.com/anhhung04/plant-care/internal/infrastructure/config"
	"github.com/anhhung04/plant-care/internal/infrastructure/database"
	"github.com/anhhung04/plant-care/migrations"
)

const testSecret = "test-secret-for-development-only-0123456789"

// writeConfig writes a minimal valid configuration with the database in a
// temp directory. extra is appended verbatim.
func writeConfig(t *testing.T, extra string) (configPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "plantcare.db")
	configPath = filepath.Join(dir, "config.yaml")

	content := fmt.Sprintf(`
site:
  id: test-site
  timezone: UTC

database:
  path: %q
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"

logging:
  level: error
  format: text
  output: stdout

api:
  enabled: true
  host: "127.0.0.1"
  port: 8080

security:
  jwt:
    secret: %q
    access_token_ttl: 15
%s`, dbPath, testSecret, extra)

	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath, dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// ─── Config Path Tests ─────────────────────────────────────────────

func TestResolveConfigPath(t *testing.T) {
	t.Setenv(configEnvVar, "")
	if got := (&cliOptions{}).resolveConfigPath(); got != defaultConfigPath {
		t.Errorf("default = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv(configEnvVar, "/etc/plantcare/config.yaml")
	if got := (&cliOptions{}).resolveConfigPath(); got != "/etc/plantcare/config.yaml" {
		t.Errorf("env = %q", got)
	}

	if got := (&cliOptions{configPath: "local.yaml"}).resolveConfigPath(); got != "local.yaml" {
		t.Errorf("flag = %q, want local.yaml", got)
	}
}

// ─── Serve Tests ───────────────────────────────────────────────────

// TestRunServe_InvalidConfig verifies serve fails with an invalid config path.
func TestRunServe_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := runServe(ctx, "/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("runServe() should fail with invalid config path")
	}
}

// TestRunServe_MissingSecret verifies validation runs before any connection.
func TestRunServe_MissingSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
site:
  id: test-site
database:
  path: "/tmp/unused.db"
api:
  enabled: true
  port: 8080
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	err := runServe(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "jwt") {
		t.Fatalf("runServe() error = %v, want jwt secret error", err)
	}
}

// ─── Token Command Tests ───────────────────────────────────────────

func TestTokenCommand(t *testing.T) {
	configPath, _ := writeConfig(t, "")

	out, err := execute(t, "token", "-c", configPath, "--subject", "ops", "--role", "operator")
	if err != nil {
		t.Fatalf("token: %v (%s)", err, out)
	}

	claims, err := auth.ParseToken(strings.TrimSpace(out), testSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "ops" || claims.Role != auth.RoleOperator {
		t.Errorf("claims = %+v", claims)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != 15*time.Minute {
		t.Errorf("ttl = %s, want config default 15m", ttl)
	}
}

func TestTokenCommand_Errors(t *testing.T) {
	configPath, _ := writeConfig(t, "")

	if _, err := execute(t, "token", "-c", configPath, "--subject", "ops", "--role", "root"); err == nil {
		t.Error("unknown role accepted")
	}
	if _, err := execute(t, "token", "-c", configPath); err == nil {
		t.Error("missing --subject accepted")
	}
}

// ─── Migrate Command Tests ─────────────────────────────────────────

func TestMigrateCommand(t *testing.T) {
	configPath, _ := writeConfig(t, "")

	out, err := execute(t, "migrate", "-c", configPath, "--status")
	if err != nil {
		t.Fatalf("migrate --status: %v", err)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("fresh database status = %q, want pending migrations", out)
	}

	if _, err := execute(t, "migrate", "-c", configPath); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	out, err = execute(t, "migrate", "-c", configPath, "--status")
	if err != nil {
		t.Fatalf("migrate --status: %v", err)
	}
	if !strings.Contains(out, "applied") || strings.Contains(out, "pending") {
		t.Errorf("migrated status = %q", out)
	}

	if _, err := execute(t, "migrate", "-c", configPath, "--down", "--status"); err == nil {
		t.Error("--down with --status accepted")
	}
}

// ─── Reconcile Command Tests ───────────────────────────────────────

type controlRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (c *controlRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.paths = append(c.paths, r.Method+" "+r.URL.RequestURI())
	c.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func TestReconcileCommand(t *testing.T) {
	rec := &controlRecorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	configPath, dbPath := writeConfig(t, fmt.Sprintf(`
dispatcher:
  mode: http
  url: %q
`, srv.URL))
	seedAutomaticFan(t, dbPath, 35)

	out, err := execute(t, "reconcile", "-c", configPath)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !strings.Contains(out, "actuations=1") {
		t.Errorf("summary = %q, want one actuation", out)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := "POST /api/v1/greenhouses/gh_1/fields/0/control?device=fan&value=100"
	if len(rec.paths) != 1 || rec.paths[0] != want {
		t.Errorf("control calls = %v, want [%s]", rec.paths, want)
	}
}

func seedAutomaticFan(t *testing.T, dbPath string, temperature float64) {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := greenhouse.NewSQLiteRepository(db.DB)
	now := time.Now().UTC()
	for ch, v := range map[greenhouse.Channel]float64{
		greenhouse.ChannelTemperature: temperature,
		greenhouse.ChannelHumidity:    50,
	} {
		err := repo.AppendReading(ctx, greenhouse.ReadingInput{
			Owner:        "alice",
			GreenhouseID: "gh_1",
			FieldIndex:   0,
			Channel:      ch,
			Reading:      greenhouse.Reading{Value: v, Unit: ch.DefaultUnit(), Timestamp: now},
		})
		if err != nil {
			t.Fatalf("AppendReading: %v", err)
		}
	}
	cfg, err := greenhouse.ParseDeviceConfig([]byte(`{"mode":"automatic"}`))
	if err != nil {
		t.Fatalf("ParseDeviceConfig: %v", err)
	}
	if err := repo.SetDeviceConfig(ctx, "gh_1", 0, greenhouse.DeviceFan, cfg); err != nil {
		t.Fatalf("SetDeviceConfig: %v", err)
	}
}

// ─── Wiring Tests ──────────────────────────────────────────────────

type nopPublisher struct{}

func (nopPublisher) Publish(string, []byte, byte, bool) error { return nil }
func (nopPublisher) QoS() byte                                { return 1 }

func TestBuildAdapters(t *testing.T) {
	client := &http.Client{Timeout: time.Second}

	cfg := &config.Config{}
	cfg.Dispatcher.Mode = config.DispatcherModeMQTT
	if _, err := buildDispatcher(cfg, nil, client); err == nil {
		t.Error("mqtt dispatcher without a publisher accepted")
	}
	d, err := buildDispatcher(cfg, nopPublisher{}, client)
	if _, ok := d.(*control.MQTTDispatcher); err != nil || !ok {
		t.Errorf("mqtt mode dispatcher = %T, %v", d, err)
	}

	cfg.Dispatcher = config.DispatcherConfig{Mode: config.DispatcherModeHTTP, URL: "http://processor:8000"}
	d, err = buildDispatcher(cfg, nil, client)
	if _, ok := d.(*control.HTTPDispatcher); err != nil || !ok {
		t.Errorf("http mode dispatcher = %T, %v", d, err)
	}

	cfg.Predictor.Mode = config.PredictorModeThreshold
	p, err := buildPredictor(cfg, client)
	if _, ok := p.(*control.ThresholdPredictor); err != nil || !ok {
		t.Errorf("threshold predictor = %T, %v", p, err)
	}

	n, err := buildNotifier(cfg, client)
	if err != nil || n != nil {
		t.Errorf("disabled notifier = %v, %v, want nil", n, err)
	}
	cfg.Notifier = config.NotifierConfig{Enabled: true, URL: "http://notify:9000", AuthKey: "k"}
	n, err = buildNotifier(cfg, client)
	if _, ok := n.(*control.HTTPNotifier); err != nil || !ok {
		t.Errorf("enabled notifier = %T, %v", n, err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "plantcare dev") {
		t.Errorf("version output = %q", out)
	}
}
