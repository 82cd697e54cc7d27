// Observer - passive fleet monitor.
//
// The observer subscribes to device info and telemetry for every device (or
// the one named by observer.device_filter) and keeps a last-seen registry.
// It never publishes device commands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/api"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/config"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/logging"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/mqtt"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/observer"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	serviceName       = "observer"
	defaultConfigPath = "configs/config.yaml"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	configFlag := fs.String("config", "", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logging.Default(serviceName)
	log.Info("starting observer", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath(*configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, serviceName, version)
	log.Info("configuration loaded", "path", configPath, "device_filter", cfg.Observer.DeviceFilter)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

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
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", mqttClient.ClientID(),
	)

	fleet, err := observer.New(observer.Options{
		DeviceFilter: cfg.Observer.DeviceFilter,
		QoS:          byte(cfg.MQTT.QoS), //nolint:gosec // validated 0..2
		MQTTClient:   mqttClient,
		Logger:       log.Component("observer"),
		Metrics:      observer.NewMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("creating observer: %w", err)
	}
	if err := fleet.Start(ctx); err != nil {
		return fmt.Errorf("starting observer: %w", err)
	}
	defer func() {
		log.Info("stopping observer")
		fleet.Stop()
	}()

	if cfg.API.Enabled {
		status := func() any {
			return map[string]any{
				"devices": fleet.Devices(),
				"mqtt":    mqttClient.Stats(),
			}
		}
		srv, apiErr := api.New(api.Deps{
			Config:     cfg.API,
			Logger:     log.Component("api"),
			Service:    serviceName,
			Version:    version,
			Checks:     map[string]api.HealthChecker{"mqtt": mqttClient},
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
	log.Info("shutdown signal received", "devices_seen", len(fleet.Devices()))
	return nil
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
