// Local activity websocket: GET /api/v1/activity/ws upgrades the
// connection and streams eventbus.Patch events in the same envelope shape
// RemoteSync's outbound client speaks to the shared control plane, so a
// local UI can subscribe to one wire format regardless of whether it is
// watching this instance directly or a synchronized remote one.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

type activityFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type ackFrame struct {
	Cursor int64 `json:"cursor"`
}

const activityPingInterval = 30 * time.Second

func (s *Server) handleActivityWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("httpapi: activity websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	patches, cancel := s.events.Subscribe(ctx)
	defer cancel()

	go s.drainAcks(ctx, conn)

	ticker := time.NewTicker(activityPingInterval)
	defer ticker.Stop()

	for {
		select {
		case p, ok := <-patches:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "stream closed")
				return
			}
			if err := wsjson.Write(ctx, conn, activityFrame{Type: "activity", Data: p}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		}
	}
}

// drainAcks reads and discards inbound ack frames, keeping the read side
// of the connection alive so control frames (ping/pong, close) are
// processed; a full cursor-based resend-on-ack policy is RemoteSync's
// concern when acting as a server, which this instance never does.
func (s *Server) drainAcks(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame json.RawMessage
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return
		}
		var ack struct {
			Type string   `json:"type"`
			Data ackFrame `json:"data"`
		}
		if err := json.Unmarshal(frame, &ack); err != nil {
			continue
		}
	}
}
