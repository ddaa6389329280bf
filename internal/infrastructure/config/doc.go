// Package config handles loading and validating PetCare Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (PETCARE_*)
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (MQTT passwords, InfluxDB tokens, MongoDB credentials
// embedded in the URI) should be set via environment variables.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MongoDB.Database)
package config
