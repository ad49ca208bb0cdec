// Package config loads and validates the service configuration from
// config.yml, with environment overrides for deployment-specific values.
package config
