package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/renameflux/renameflux/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

const (
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 10 * time.Second
)

// stream handles GET /ws/:job_id. The client first receives a status
// event built from the current snapshot, then the live stream until the
// job ends or the client disconnects.
func (h *handler) stream(c *gin.Context) {
	jobID := c.Param("job_id")
	snap, err := h.sup.Snapshot(jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(env protocol.Envelope) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(env)
	}

	// Subscribe before snapshotting so no event between the snapshot and
	// the first channel read is lost.
	events, cancel := h.sup.Hub().Subscribe(jobID)
	defer cancel()
	snap, err = h.sup.Snapshot(jobID)
	if err != nil {
		return
	}

	initial, err := protocol.NewEnvelope(protocol.TypeStatus, jobID, protocol.StatusEvent{
		Status:       snap.Status,
		Progress:     snap.Progress,
		Total:        snap.Total,
		Renamed:      snap.Renamed,
		Failed:       snap.Failed,
		NotFound:     snap.NotFound,
		NeedsOTP:     snap.NeedsOTP,
		SessionToken: snap.SessionToken,
		Error:        snap.Error,
	})
	if err != nil {
		h.logger.Error("failed to create status envelope", "error", err)
		return
	}
	if err := send(initial); err != nil {
		return
	}
	if snap.Status == "done" || snap.Status == "error" {
		return
	}

	// Read pump: the client sends nothing meaningful, but reads surface
	// disconnects promptly.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-events:
			if !ok {
				// Job finished, or this subscriber fell too far behind.
				return
			}
			if err := send(env); err != nil {
				return
			}
		case <-ticker.C:
			writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			writeMu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
