// ABOUTME: Server-Sent Events stream of conversation changes
// ABOUTME: Subscribes to the EventBroadcaster and forwards new_message events with heartbeats

package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/2389/model-router/internal/conversation"
	"github.com/2389/model-router/internal/dispatch"
)

// heartbeatInterval keeps idle SSE connections open through proxies.
const heartbeatInterval = 15 * time.Second

// handleEvents handles GET /api/events. With ?conversation_id= it streams only
// that conversation; otherwise every conversation.
func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, dispatch.KindInternal, "streaming not supported")
		return
	}

	convID := r.URL.Query().Get("conversation_id")
	if convID != conversation.AllConversations {
		if _, err := g.conversations.Get(convID); err != nil {
			g.sendJSONError(w, http.StatusNotFound, dispatch.KindConversationNotFound, "Conversation not found")
			return
		}
	}

	ctx := r.Context()
	events, _ := g.broadcaster.Subscribe(ctx, convID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	g.writeSSEEvent(w, "connected", map[string]string{"conversation_id": convID})
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			g.writeSSEEvent(w, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			flusher.Flush()

		case evt, ok := <-events:
			if !ok {
				return
			}
			g.writeSSEEvent(w, evt.Type, evt)
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single SSE event to the writer.
func (g *Gateway) writeSSEEvent(w io.Writer, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, dataJSON)
}
