// Controller - threshold monitor for one smart object.
//
// The controller subscribes to the target device's info, telemetry and event
// topics. When a temperature sample exceeds the configured limit it switches
// the device OFF and schedules a delayed re-arm back to ON.
//
// Pending re-arms can be persisted to SQLite (controller.store.enabled) so a
// restart does not strand a device OFF, and every decision can be written to
// InfluxDB (influxdb.enabled).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	_ "github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/migrations"

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/api"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/controller"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/config"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/database"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/influxdb"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/logging"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	serviceName       = "controller"
	defaultConfigPath = "configs/config.yaml"

	// schemaStatusTimeout bounds the migration lookup behind /api/v1/status.
	schemaStatusTimeout = 2 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context, args []string) error { //nolint:gocognit,gocyclo // linear startup sequence
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	configFlag := fs.String("config", "", "path to the YAML configuration file")
	migrateDown := fs.Bool("migrate-down", false, "roll back the latest re-arm store migration and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logging.Default(serviceName)
	log.Info("starting controller",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath(*configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, serviceName, version)
	log.Info("configuration loaded",
		"path", configPath,
		"target_device", cfg.Controller.TargetDevice,
		"temperature_limit", cfg.Controller.TemperatureLimit,
		"rearm_delay", cfg.Controller.RearmDelay,
		"rearm_policy", cfg.Controller.RearmPolicy,
	)

	if *migrateDown {
		return rollbackStore(ctx, cfg.Database, log)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checks := make(map[string]api.HealthChecker)

	// Durable re-arm store (optional)
	var (
		store controller.Store
		db    *database.DB
	)
	if cfg.Controller.Store.Enabled {
		var openErr error
		db, openErr = database.Open(database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if openErr != nil {
			return fmt.Errorf("opening database: %w", openErr)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("re-arm store ready", "path", cfg.Database.Path)

		store = controller.NewSQLiteStore(db.DB)
		checks["database"] = db
	}

	// Decision audit (optional)
	var recorder controller.Recorder
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)

		recorder = influxClient
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = mqtt.NewClientID(serviceName)
	}
	mqttClient, err := mqtt.ConnectContext(ctx, cfg.MQTT)
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
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)
	checks["mqtt"] = mqttClient

	monitor, err := controller.New(controller.Options{
		Controller: cfg.Controller,
		QoS:        byte(cfg.MQTT.QoS),       //nolint:gosec // validated 0..2
		ActionQoS:  byte(cfg.MQTT.ActionQoS), //nolint:gosec // validated 0..2
		MQTTClient: mqttClient,
		Store:      store,
		Recorder:   recorder,
		Logger:     log.Component("monitor"),
		Metrics:    controller.NewMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("creating monitor: %w", err)
	}
	if err := monitor.Start(ctx); err != nil {
		return fmt.Errorf("starting monitor: %w", err)
	}
	defer func() {
		log.Info("stopping monitor")
		monitor.Stop()
	}()

	if cfg.API.Enabled {
		status := func() any {
			out := map[string]any{
				"monitor": monitor.Snapshot(),
				"mqtt":    mqttClient.Stats(),
			}
			if db != nil {
				out["schema"] = schemaStatus(db)
			}
			return out
		}
		srv, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			Logger:     log.Component("api"),
			Service:    serviceName,
			Version:    version,
			Checks:     checks,
			Status:     status,
			Gatherer:   reg,
			Registerer: reg,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, monitor, MQTT, InfluxDB, database.
	return nil
}

// rollbackStore reverts the most recent re-arm store migration.
func rollbackStore(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) error {
	db, err := database.Open(database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-only after rollback

	if err := db.MigrateDown(ctx); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	log.Info("migration rolled back",
		"path", cfg.Path,
		"applied", len(applied),
		"pending", len(pending),
	)
	return nil
}

// schemaReport is the migration section of the status snapshot.
type schemaReport struct {
	Applied []string `json:"applied"`
	Pending []string `json:"pending"`
	Error   string   `json:"error,omitempty"`
}

func schemaStatus(db *database.DB) schemaReport {
	ctx, cancel := context.WithTimeout(context.Background(), schemaStatusTimeout)
	defer cancel()

	applied, pending, err := db.MigrationStatus(ctx)
	if err != nil {
		return schemaReport{Error: err.Error()}
	}
	report := schemaReport{Applied: []string{}, Pending: []string{}}
	for _, r := range applied {
		report.Applied = append(report.Applied, r.Version)
	}
	for _, m := range pending {
		report.Pending = append(report.Pending, m.Version)
	}
	return report
}

// getConfigPath returns the configuration file path: the -config flag, then
// SMARTOBJECT_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("SMARTOBJECT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
