// Package config provides configuration management for the kubegate
// command gateway.
//
// # Overview
//
// The config package uses Viper to load configuration from YAML files and
// environment variables. It provides a type-safe configuration structure with
// validation, default values, and automatic file creation.
//
// # Configuration File
//
// The configuration is stored at ~/.kubegate/config.yaml and is automatically
// created with sensible defaults on first use. The file structure mirrors
// the Go structs defined in this package.
//
// # Environment Variables
//
// All configuration values can be overridden using environment variables
// with the KUBEGATE_ prefix. Nested fields are separated by underscores.
//
// Examples:
//   - KUBEGATE_POLICY_ADMIN_MODE=true
//   - KUBEGATE_ADVISOR_API_KEY=sk-...
//   - KUBEGATE_EXECUTOR_TIMEOUT=60s
//   - KUBEGATE_LOGGING_LEVEL=debug
//
// # Usage Example
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	if cfg.Policy.AdminMode {
//		// every command passes policy while this is set
//	}
package config
