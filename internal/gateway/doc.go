// Package gateway wires model-router's components together and serves them
// over HTTP.
//
// # Overview
//
// A Gateway owns the capability registry (with every model bound to its
// provider client), the conversation store and its event broadcaster, the
// eviction janitor, the prompt template store, the usage ledger, the
// dispatcher and the dashboard.
//
// # HTTP API
//
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check
//   - POST /api/chat - Dispatch a prompt and wait for the answer
//   - GET /api/conversations - Conversation summaries, most recent first
//   - GET /api/conversations/{id} - One conversation with full history
//   - DELETE /api/conversations/{id} - Delete a conversation
//   - GET /api/models - Capability table
//   - GET /api/prompts - Loaded template names
//   - GET /api/stats/usage - Usage ledger aggregates
//   - GET /api/events - SSE stream of new messages
//   - GET / and GET /conversations/{id} - Dashboard pages
//
// Failed requests carry {"error": "...", "kind": "..."} where kind is one of
// the dispatcher's error kinds (see dispatch.Kind) or invalid_request.
//
// # SSE Streaming
//
// GET /api/events streams every recorded message, or only one conversation's
// with ?conversation_id=:
//
//	event: connected
//	data: {"conversation_id": ""}
//
//	event: new_message
//	data: {"type": "new_message", "conversation_id": "...", "message": {...}}
//
// A heartbeat event is sent every 15 seconds.
//
// # Listeners
//
// Without Tailscale the server binds server.http_addr and falls back to each
// of server.fallback_addrs in turn when the address is taken. With Tailscale
// enabled it joins the tailnet through tsnet instead and serves plain HTTP on
// the port of server.http_addr (":80" when unset), HTTPS on :443 with
// Tailscale certificates, or publicly through Funnel on :443.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled
//
// Run supervises the HTTP server, the janitor and the prompt watcher with an
// errgroup and shuts everything down when ctx ends or one of them fails.
package gateway
