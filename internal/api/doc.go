// Package api exposes the service over HTTP: telemetry ingest, history and
// trend queries, machine and fleet health, the alert ledger, one-off
// inference, chat and report generation. All endpoints live under /api/v1
// and speak JSON.
package api
