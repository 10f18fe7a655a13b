package wsserver

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatsFunc reports live counters for the health endpoint.
type StatsFunc func() map[string]int

// Routes mounts the socket endpoint at / and /ws, a health check at /healthz and,
// when api is non-nil, the REST handlers under /api/.
func Routes(h *Hub, stats StatsFunc, api http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok", "connections": h.ConnCount()}
		if stats != nil {
			for k, v := range stats() {
				body[k] = v
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	if api != nil {
		mux.Handle("/api/", api)
	}
	mux.Handle("/ws", h)
	mux.Handle("/", h)
	return mux
}

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
