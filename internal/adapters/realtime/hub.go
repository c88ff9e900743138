package realtime

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ironledger/memberd/internal/app/members"
	"github.com/ironledger/memberd/internal/ports/out/memberbackend"
)

// Hub bridges the backend change feed to the UI. Every event triggers a
// cache invalidation through the coherence manager and a websocket push to
// connected dashboard clients. Event payloads are never treated as
// authoritative entity state: clients refetch on notification.
type Hub struct {
	coh *members.Coherence
	log *logrus.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewHub(coh *members.Coherence, log *logrus.Logger) *Hub {
	return &Hub{
		coh: coh,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// CORS policy is enforced by the HTTP middleware chain.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// event is the notification pushed to dashboard clients.
type event struct {
	Type     string `json:"type"`
	MemberID string `json:"memberId,omitempty"`
}

// Run consumes the backend change feed until ctx is done. Backends without a
// feed are tolerated: the hub logs once and the dashboard falls back to
// request-time cache refresh.
func (h *Hub) Run(ctx context.Context, backend memberbackend.Client) error {
	changes, err := backend.Changes(ctx)
	if err != nil {
		if errors.Is(err, memberbackend.ErrChangeFeedUnsupported) {
			h.log.Info("backend has no change feed; realtime updates disabled")
			return nil
		}
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ch, ok := <-changes:
			if !ok {
				return nil
			}
			h.coh.OnChange(ctx, ch)
			h.broadcast(event{Type: string(ch.Type), MemberID: string(ch.MemberID)})
		}
	}
}

// ServeHTTP upgrades the connection and registers the client for pushes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	// Reads are only used to detect disconnect; clients never send data.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) broadcast(ev event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteJSON(ev); err != nil {
			delete(h.clients, conn)
			_ = conn.Close()
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}
