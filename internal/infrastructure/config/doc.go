// Package config handles loading and validating plantcare configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading an optional .env file for secrets
//   - Overriding with PLANTCARE_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Sensitive values (MQTT password, notifier auth key, JWT secret) should be
//     set via environment variables or .env, never committed in YAML
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Reconciler.Interval)
package config
