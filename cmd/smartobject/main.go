// Smart Object - simulated IoT device.
//
// The smart object announces its identity on a retained info topic, publishes
// a temperature sample every agent.publish_interval while its switch is ON,
// raises OVER_HEATING events above agent.alert_threshold and obeys SWITCH
// commands received on its action topic.
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

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/agent"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/api"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/config"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/logging"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	serviceName       = "smartobject"
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

// run wires the agent and blocks until shutdown or the message limit.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	configFlag := fs.String("config", "", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logging.Default(serviceName)
	log.Info("starting smart object", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath(*configFlag)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, serviceName, version).With("device_id", cfg.Device.ID)
	log.Info("configuration loaded",
		"path", configPath,
		"publish_interval", cfg.Agent.PublishInterval,
		"message_limit", cfg.Agent.MessageLimit,
		"alert_threshold", cfg.Agent.AlertThreshold,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// The device id doubles as the client id so a restarted object takes
	// over its own session.
	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = cfg.Device.ID
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

	smartObject, err := agent.New(agent.Options{
		Device:     cfg.Device,
		Agent:      cfg.Agent,
		QoS:        byte(cfg.MQTT.QoS),       //nolint:gosec // validated 0..2
		ActionQoS:  byte(cfg.MQTT.ActionQoS), //nolint:gosec // validated 0..2
		MQTTClient: mqttClient,
		Logger:     log.Component("agent"),
		Metrics:    agent.NewMetrics(reg),
	})
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	if cfg.API.Enabled {
		status := func() any {
			return map[string]any{
				"device": smartObject.Snapshot(),
				"mqtt":   mqttClient.Stats(),
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

	if err := smartObject.Run(ctx); err != nil {
		return fmt.Errorf("running agent: %w", err)
	}

	snap := smartObject.Snapshot()
	log.Info("smart object stopped",
		"ticks", snap.Ticks,
		"switch", snap.Switch,
		"actions_applied", snap.ActionsApplied,
	)
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
