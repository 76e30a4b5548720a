// Package websocket streams session snapshots via WebSocket.
//
// Clients connect to /api/v1/sessions/:id/ws and receive the latest
// snapshot followed by every newer one.
package websocket
