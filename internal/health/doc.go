// Package health derives machine and fleet health from the raw reading
// stream: a smoothed 0–100 score, a trend, an anomaly rate and a
// HEALTHY/WARNING/CRITICAL status voted from independent signals.
// Snapshots are recomputed on demand and never stored.
package health
