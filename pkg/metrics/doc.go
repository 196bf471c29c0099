/*
Package metrics provides Prometheus metrics collection and exposition for
the pipeline: reports emitted, admission decisions, poll cycles, verdicts,
witness/coverage outcomes, and Bridge request latency. Handler exposes the
standard promhttp handler for a metrics endpoint; Timer is a small helper
for histogram observation; HealthChecker (health.go) tracks per-component
readiness independently of Prometheus.
*/
package metrics
