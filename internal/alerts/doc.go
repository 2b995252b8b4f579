// Package alerts turns predictions into a deduplicated, severity-escalating
// alert stream. Per machine and severity the lifecycle is quiet → firing →
// acknowledged → quiet: a new alert fires only when no unacknowledged alert
// of the same severity exists within the cooldown window, and sustained
// warnings are promoted to critical.
package alerts
