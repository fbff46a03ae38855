// Package api implements the HTTP REST API and WebSocket server for Iroh.
//
// This package provides:
//   - status and health endpoints for the line, the engine and collaborators
//   - timer listing, creation, lookup and cancellation
//   - the command audit trail
//   - a WebSocket hub that pushes phone, engine and timer events
//   - the Prometheus /metrics endpoint
//
// # Routes
//
//	GET    /api/v1/health
//	GET    /api/v1/status
//	GET    /api/v1/timers[?all=true]
//	POST   /api/v1/timers               {"name": "Tea", "minutes": 4}
//	GET    /api/v1/timers/{id}
//	DELETE /api/v1/timers/{id}
//	GET    /api/v1/timers/{id}/history
//	GET    /api/v1/audit[?handler=&outcome=&state=&limit=&offset=]
//	GET    /api/v1/ws[?channels=phone.event,timer.event]
//	GET    /metrics
//
// # Graceful Degradation
//
// Only the timer service is required. Missing collaborators are omitted from
// /status and their endpoints answer 503.
package api
