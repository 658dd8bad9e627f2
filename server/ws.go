package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/joomcode/redisbulk/bulk"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

func (s *Server) streamAction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.snapshot(id, owner(r)); err != nil {
		s.writeError(w, err)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		s.log.Warn("websocket upgrade failed", zap.String("action_id", id), zap.Error(err))
		return
	}

	sub := s.hub.Subscribe(id)
	log := s.log.With(zap.String("action_id", id))
	go s.readPump(conn, sub, log)
	s.writePump(conn, sub, log)
}

// readPump discards client messages and detects disconnect.
func (s *Server) readPump(conn *websocket.Conn, sub *Subscription, log *zap.Logger) {
	defer s.hub.Unsubscribe(sub)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("websocket read ended", zap.Error(err))
			}
			return
		}
	}
}

// writePump sends snapshots until stream is closed, then closes connection normally.
func (s *Server) writePump(conn *websocket.Conn, sub *Subscription, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.hub.Unsubscribe(sub)
		conn.Close()
	}()

	for {
		select {
		case snap, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				writeClose(conn)
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				log.Info("websocket write failed", zap.Error(err))
				return
			}
			if snap.Status.Terminal() {
				writeClose(conn)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeClose(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
}

var _ bulk.Sink = (*Hub)(nil)
