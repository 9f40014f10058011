package ws

import (
	"context"
	"net/http"
	"time"
)

// HandleSSE streams feed events over server-sent events until the
// client disconnects. SSE subscribers always receive every topic;
// clients that want filtering use the WebSocket endpoint.
func (h *Hub) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := make(chan []byte, 64)
	h.sseMu.Lock()
	h.sseSubs[sub] = true
	h.sseMu.Unlock()
	if h.metrics != nil {
		h.metrics.IncrementConnections(r.Context())
	}
	defer func() {
		h.sseMu.Lock()
		delete(h.sseSubs, sub)
		h.sseMu.Unlock()
		if h.metrics != nil {
			h.metrics.DecrementConnections(context.Background())
		}
	}()

	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-sub:
			w.Write([]byte("data: "))
			w.Write(msg)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-keepalive.C:
			w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		}
	}
}
