package clinician

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// queueUpdate is one frame pushed to connected dashboards.
type queueUpdate struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// handleEscalationFeed upgrades the connection and pushes the PENDING
// queue whenever it changes, so dashboards see new and resolved tickets
// without polling.
func (h *Handler) handleEscalationFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	changes, cancel := h.triage.Feed().Subscribe()
	defer cancel()

	// Drain client frames so pongs and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	send := func() error {
		pending, err := h.views.PendingEscalations(ctx)
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(queueUpdate{Type: "escalation_queue", Payload: pending})
	}
	if err := send(); err != nil {
		return
	}

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			if err := send(); err != nil {
				h.logger.Debug().Err(err).Msg("websocket send failed, dropping subscriber")
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
