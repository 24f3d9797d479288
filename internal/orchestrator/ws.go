package orchestrator

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type wsUpdate struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
	statusResp
}

// handleWS pushes status updates for one job until it finishes, is evicted
// or the client goes away.
func (o *Orchestrator) handleWS(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/ws/")
	updates, cancel, err := o.Subscribe(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Job not found", "status": "error"})
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("job_id", id).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case snap, ok := <-updates:
			if !ok {
				closeWS(conn, "job evicted")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(wsUpdate{Type: "job_update", JobID: id, statusResp: statusBody(snap)}); err != nil {
				return
			}
			if snap.State.Terminal() {
				closeWS(conn, string(snap.State))
				return
			}
		}
	}
}

func closeWS(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
