// Package api hosts the operator HTTP server. Routes:
//   - GET /healthz and /readyz for probes; readiness pings the database.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs/latest for the most recent pipeline report.
//   - GET /v1/runs/events for run events kept in memory when no Pub/Sub
//     topic is configured.
package api
