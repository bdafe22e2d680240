package server

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/vango-dev/readyroom/pkg/protocol"
)

// frameConn is a socket that carries protocol frames.
type frameConn interface {
	// ReadMessage blocks for the next frame. It returns io.EOF when the peer
	// ends the stream cleanly.
	ReadMessage() (*protocol.Message, error)

	// WriteMessage writes one frame before the deadline.
	WriteMessage(m *protocol.Message, deadline time.Time) error

	// Close closes the socket. It is idempotent.
	Close() error

	RemoteAddr() net.Addr
	Transport() string
}

// tcpConn carries frames back to back on a byte stream.
type tcpConn struct {
	conn      net.Conn
	r         *bufio.Reader
	closeOnce sync.Once
	closeErr  error
}

func newTCPConn(conn net.Conn) *tcpConn {
	return &tcpConn{conn: conn, r: bufio.NewReader(conn)}
}

func (c *tcpConn) ReadMessage() (*protocol.Message, error) {
	m, err := protocol.ReadMessage(c.r)
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil, io.EOF
	}
	return m, err
}

func (c *tcpConn) WriteMessage(m *protocol.Message, deadline time.Time) error {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return protocol.WriteMessage(c.conn, m)
}

func (c *tcpConn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}

func (c *tcpConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *tcpConn) Transport() string { return "tcp" }
