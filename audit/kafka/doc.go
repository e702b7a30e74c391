// Package kafka publishes audit events to a Kafka topic. Wrap the sink in
// the engine's async dispatcher (WithAuditSink) so broker latency never
// reaches a login request.
package kafka
