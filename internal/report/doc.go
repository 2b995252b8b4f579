// Package report assembles on-demand fleet condition reports: a fleet
// overview, per-machine detail with short-term trends, the alert ledger and
// prioritized maintenance actions. Reports render as JSON or plain text and
// are built from live state only, nothing is persisted.
package report
