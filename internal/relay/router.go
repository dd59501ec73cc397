package relay

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Register mounts the relay endpoints on r. A nil gatherer leaves /metrics
// unmounted.
func (h *Handler) Register(r chi.Router, gatherer prometheus.Gatherer) {
	r.Get("/ws", h.Handle)
	r.Get("/health", h.handleHealth)
	r.Get("/diagnostics", h.handleDiagnostics)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// NewRouter builds the relay HTTP surface.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	h.Register(r, gatherer)
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (h *Handler) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	cfg := h.hub.Config()
	payload := struct {
		Status     string  `json:"status"`
		ServerTime int64   `json:"serverTime"`
		PeerRate   float64 `json:"peerRate"`
		PeerBurst  int     `json:"peerBurst"`
		Stats      Stats   `json:"stats"`
	}{
		Status:     "ok",
		ServerTime: time.Now().UnixMilli(),
		PeerRate:   cfg.PeerRate,
		PeerBurst:  cfg.PeerBurst,
		Stats:      h.hub.Stats(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
