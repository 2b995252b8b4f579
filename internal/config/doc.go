// Package config loads and validates the service configuration from YAML.
// Every scoring and alerting threshold is configurable here rather than
// hard-coded, and Watch supports hot-reloading the file so thresholds can be
// retuned without a restart.
package config
