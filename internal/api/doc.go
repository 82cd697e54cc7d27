// Package api implements the small ops HTTP server each binary can expose.
//
// Endpoints:
//
//	GET /api/v1/health  component health (MQTT, database, InfluxDB); 503 when degraded
//	GET /api/v1/status  component snapshots (agent, controller or observer view plus MQTT stats)
//	GET /metrics        Prometheus exposition
//
// Every request is counted and timed by chi route pattern when a Registerer
// is supplied.
//
// The server is optional and disabled unless api.enabled is set. It carries
// no write endpoints: devices are driven over MQTT only.
//
// Lifecycle:
//
//	srv, err := api.New(deps)
//	if err := srv.Start(ctx); err != nil { ... }
//	defer srv.Close()
package api
