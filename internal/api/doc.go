// Package api hosts the optional status server for a running capture.
// Routes:
//   - GET /healthz for liveness checks.
//   - GET /metrics for Prometheus scraping of the run registry.
//   - GET /v1/progress for the controller state, counts by status, and the
//     rows recorded so far.
package api
