package server

import (
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/readyroom/pkg/protocol"
)

// HandleWebSocket upgrades an admitted request and runs it as a client. Each
// binary message carries exactly one frame.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := s.admission(); err != nil {
		reason := rejectReason(err)
		s.metrics.ConnectionRejected(reason)
		s.logger.Warn("websocket refused", "remote", r.RemoteAddr, "reason", reason)
		status := http.StatusServiceUnavailable
		if errors.Is(err, ErrRateLimited) {
			status = http.StatusTooManyRequests
		}
		http.Error(w, err.Error(), status)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	s.connect(newWSConn(ws))
}

// wsConn carries one frame per binary WebSocket message.
type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(conn *websocket.Conn) *wsConn {
	conn.SetReadLimit(protocol.HeaderSize + protocol.MaxPayloadSize)
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadMessage() (*protocol.Message, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, net.ErrClosed) {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		return protocol.DecodeMessage(data)
	}
}

func (c *wsConn) WriteMessage(m *protocol.Message, deadline time.Time) error {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, m.Encode())
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *wsConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *wsConn) Transport() string { return "websocket" }
