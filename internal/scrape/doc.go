// Package scrape polls Prometheus-format metric endpoints exposed by
// machine controllers and converts the exported gauges into readings. It is
// the pull-based counterpart to the push paths (HTTP ingest and MQTT) for
// sites where controllers already expose an exporter.
package scrape
