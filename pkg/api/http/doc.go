// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Session creation, reconfiguration and deletion
//   - Time range changes and variable edits
//   - Snapshot queries
//   - Health checks
//   - Prometheus metrics
package http
