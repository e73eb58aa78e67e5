package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/anhhung04/plant-care/internal/api"
	"github.com/anhhung04/plant-care/internal/automation"
	"github.com/anhhung04/plant-care/internal/control"
	"github.com/anhhung04/plant-care/internal/greenhouse"
	"github.com/anhhung04/plant-care/internal/infrastructure/config"
	"github.com/anhhung04/plant-care/internal/infrastructure/database"
	"github.com/anhhung04/plant-care/internal/infrastructure/influxdb"
	"github.com/anhhung04/plant-care/internal/infrastructure/logging"
	"github.com/anhhung04/plant-care/internal/infrastructure/mqtt"
	"github.com/anhhung04/plant-care/internal/ingest"
	"github.com/anhhung04/plant-care/migrations"
)

// runServe is the service entry point, separated from main for testability.
// It returns nil on a clean shutdown after ctx is cancelled.
func runServe(ctx context.Context, configPath string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	store := greenhouse.NewSQLiteRepository(db.DB)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)

	influxClient, err := connectInflux(ctx, cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	// Sensor ingestion
	ingestor := ingest.New(store, log.Component("ingest"))
	if influxClient != nil {
		ingestor.SetMirror(influxClient)
	}
	if err := mqttClient.Subscribe(cfg.MQTT.Topics.Readings, mqttClient.QoS(), ingestor.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to readings: %w", err)
	}
	log.Info("ingesting sensor feeds", "filter", cfg.MQTT.Topics.Readings)

	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	reconciler, err := newReconciler(cfg, log, store, mqttClient, influxClient, hub)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if runErr := reconciler.Run(ctx); runErr != nil && !errors.Is(runErr, context.Canceled) {
			log.Error("reconciler stopped", "error", runErr)
		}
	}()
	log.Info("reconciler started",
		"interval", cfg.TickInterval(),
		"workers", cfg.Reconciler.Workers,
		"timezone", cfg.Site.Timezone,
	)

	checks := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}

	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			WS:         cfg.WebSocket,
			Security:   cfg.Security,
			Logger:     log.Component("api"),
			Store:      store,
			Reconciler: reconciler,
			Jobs:       reconciler.Scheduler(),
			Checks:     checks,
			Hub:        hub,
			Version:    version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	wg.Wait()

	// Deferred Close() calls run in reverse order:
	// API server, InfluxDB (if enabled), MQTT, database.
	log.Info("plantcare stopped")
	return nil
}

// loadConfig reads the configuration and builds the configured logger.
func loadConfig(path string) (*config.Config, *logging.Logger, error) {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting plantcare",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", path, "site", cfg.Site.ID)
	return cfg, log, nil
}

// openDatabase opens the field store and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")
	return db, nil
}

// connectInflux returns nil when InfluxDB is disabled.
func connectInflux(ctx context.Context, cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// newReconciler wires the control adapters into the reconciliation engine.
// influxClient and hub may be nil.
func newReconciler(cfg *config.Config, log *logging.Logger, store automation.Store, publisher control.Publisher,
	influxClient *influxdb.Client, hub *api.Hub) (*automation.Reconciler, error) {
	httpClient := &http.Client{Timeout: cfg.CallTimeout()}

	dispatcher, err := buildDispatcher(cfg, publisher, httpClient)
	if err != nil {
		return nil, err
	}
	predictor, err := buildPredictor(cfg, httpClient)
	if err != nil {
		return nil, err
	}
	notifier, err := buildNotifier(cfg, httpClient)
	if err != nil {
		return nil, err
	}

	deps := automation.Deps{
		Store:      store,
		Dispatcher: dispatcher,
		Predictor:  predictor,
		Notifier:   notifier,
		Logger:     log.Component("reconciler"),
	}
	if influxClient != nil {
		deps.Recorder = influxClient
	}
	if hub != nil {
		deps.Hub = hub
	}

	return automation.NewReconciler(deps, automation.Options{
		Interval:     cfg.TickInterval(),
		CallTimeout:  cfg.CallTimeout(),
		Workers:      cfg.Reconciler.Workers,
		MisfireGrace: cfg.MisfireGrace(),
		Retention:    cfg.JobRetention(),
		Location:     cfg.Location(),
	}), nil
}

func buildDispatcher(cfg *config.Config, publisher control.Publisher, client *http.Client) (automation.Dispatcher, error) {
	if cfg.Dispatcher.Mode == config.DispatcherModeHTTP {
		d, err := control.NewHTTPDispatcher(cfg.Dispatcher.URL, client)
		if err != nil {
			return nil, fmt.Errorf("creating HTTP dispatcher: %w", err)
		}
		return d, nil
	}
	if publisher == nil {
		return nil, fmt.Errorf("mqtt dispatcher requires an MQTT connection")
	}
	return control.NewMQTTDispatcher(publisher, cfg.MQTT.Topics.ControlPrefix), nil
}

func buildPredictor(cfg *config.Config, client *http.Client) (automation.Predictor, error) {
	if cfg.Predictor.Mode == config.PredictorModeHTTP {
		p, err := control.NewHTTPPredictor(cfg.Predictor.URL, client)
		if err != nil {
			return nil, fmt.Errorf("creating HTTP predictor: %w", err)
		}
		return p, nil
	}
	return control.NewThresholdPredictor(control.DefaultThresholds()), nil
}

// buildNotifier returns a nil Notifier when notifications are disabled.
func buildNotifier(cfg *config.Config, client *http.Client) (automation.Notifier, error) {
	if !cfg.Notifier.Enabled {
		return nil, nil
	}
	n, err := control.NewHTTPNotifier(cfg.Notifier.URL, cfg.Notifier.AuthKey, client)
	if err != nil {
		return nil, fmt.Errorf("creating notifier: %w", err)
	}
	return n, nil
}

// healthCheck verifies every infrastructure connection, in name order.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for _, name := range []string{"database", "mqtt", "influxdb"} {
		checker, ok := checks[name]
		if !ok {
			continue
		}
		if err := checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
