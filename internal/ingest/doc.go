// Package ingest consumes telemetry readings from an MQTT broker as an
// alternative to the HTTP ingest endpoint. Machines on the shop floor
// publish the same JSON reading payload to a configured topic; malformed
// payloads are logged and dropped, never crash the subscriber.
package ingest
