// Package api implements the HTTP REST API and WebSocket server for the
// entity manager.
//
// This package provides:
//   - The command dispatch table shared by the WebSocket and REST transports
//   - JSON Schema validation of every command message
//   - A WebSocket hub that answers commands and pushes entity update events
//   - JWT authentication with ticket-based WebSocket auth
//   - Prometheus metrics and a JSON system status endpoint
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Commands
//
// A command is a JSON object {id, type, ...fields} whose type starts with
// "entity_manager/". The reply is {id, type:"result", success, result} on
// success or {id, type:"result", success:false, error:{code, message}}.
// Bulk operations and reference rewrites report per-item failures inside
// a successful reply.
//
// # Security
//
// Every command requires an admin access token. WebSocket connections use
// single-use tickets so the token never appears in a URL.
package api
