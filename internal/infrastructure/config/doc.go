// Package config handles loading and validating the smart object, controller
// and observer configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (SMARTOBJECT_*)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker credentials and the InfluxDB token should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.ID)
package config
