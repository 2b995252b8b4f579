// Package scheduler drives the periodic evaluation cycle: for every machine
// with enough telemetry it runs the window heuristic, records the prediction
// and feeds it to the alert engine. One cycle runs at a time, whether started
// by the timer or triggered over the API.
package scheduler
