// Package dashboard renders the HTML monitoring pages for model-router.
//
// The index page lists live conversations (most recent first), the model
// capability table and usage ledger totals. Each conversation has its own page
// with the full message history; message bodies are rendered from Markdown
// with goldmark, and raw HTML inside a message is dropped.
//
// Pages are rendered on the server from templates embedded with go:embed. The
// browser then subscribes to the gateway's SSE endpoint to append new messages
// as they are recorded.
package dashboard
