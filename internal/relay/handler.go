package relay

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dsonbill/BDDMP/internal/telemetry"
)

type HandlerConfig struct {
	Logger telemetry.Logger
}

// Handler upgrades peer connections and pumps frames through the hub.
type Handler struct {
	hub      *Hub
	logger   telemetry.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		logger:   logger,
		upgrader: upgrader,
	}
}

// Handle serves /ws?peer=<id>.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	peerID := r.URL.Query().Get("peer")
	if peerID == "" {
		http.Error(w, "missing peer", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", peerID, err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	p := h.hub.newPeer(peerID, conn)
	h.hub.register(ctx, p, r.RemoteAddr)
	go h.writeLoop(p)
	h.readLoop(ctx, p)
}

func (h *Handler) readLoop(ctx context.Context, p *peer) {
	cfg := h.hub.cfg
	p.conn.SetReadLimit(cfg.MaxMessageBytes)
	_ = p.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	reason := "closed"
	for {
		messageType, payload, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, websocket.ErrReadLimit) {
				h.logger.Printf("read failed for %s: %v", p.id, err)
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				reason = "message too large"
			}
			break
		}
		_ = p.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		if messageType != websocket.BinaryMessage {
			h.logger.Printf("discarding non-binary message from %s", p.id)
			continue
		}
		h.hub.route(ctx, p, payload)
	}
	h.hub.unregister(ctx, p, reason)
}

func (h *Handler) writeLoop(p *peer) {
	cfg := h.hub.cfg
	ticker := time.NewTicker(cfg.PongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case data := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := p.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				h.logger.Printf("write failed for %s: %v", p.id, err)
				p.close(websocket.CloseAbnormalClosure, "", cfg.WriteWait)
				return
			}
			p.sent.Add(1)
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteWait)); err != nil {
				p.close(websocket.CloseAbnormalClosure, "", cfg.WriteWait)
				return
			}
		}
	}
}
