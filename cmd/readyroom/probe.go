package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/vango-dev/readyroom/internal/console"
	"github.com/vango-dev/readyroom/internal/errors"
	"github.com/vango-dev/readyroom/pkg/protocol"
)

type probeOptions struct {
	addr    string
	chat    string
	input   string
	rounds  int
	timeout time.Duration
}

func probeCmd() *cobra.Command {
	opts := probeOptions{
		addr:    "127.0.0.1:10101",
		chat:    "hello from probe",
		input:   "probe input",
		rounds:  1,
		timeout: time.Minute,
	}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Play one scripted session against a server",
		Long: `Connect to a server, pass the handshake, report ready, wait
through the countdown, answer the server's replies and leave.

Every frame sent and received is printed.

Examples:
  readyroom probe
  readyroom probe --addr=ws://localhost:8080/ws --rounds=3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return runProbe(ctx, opts, console.New(cmd.OutOrStdout()))
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.addr, "addr", "a", opts.addr, "Server address: host:port for TCP or a ws:// URL")
	f.StringVar(&opts.chat, "chat", opts.chat, "Chat line to send after connecting (empty to stay silent)")
	f.StringVar(&opts.input, "input", opts.input, "Payload of each StubMessage sent while running")
	f.IntVar(&opts.rounds, "rounds", opts.rounds, "Server replies to wait for before leaving")
	f.DurationVar(&opts.timeout, "timeout", opts.timeout, "Give up after this long")

	return cmd
}

// probeConn is the client end of one connection.
type probeConn interface {
	Read() (*protocol.Message, error)
	Write(m *protocol.Message) error
	Close() error
}

type tcpProbeConn struct {
	conn net.Conn
	r    *bufio.Reader
}

func (c *tcpProbeConn) Read() (*protocol.Message, error) { return protocol.ReadMessage(c.r) }

func (c *tcpProbeConn) Write(m *protocol.Message) error { return protocol.WriteMessage(c.conn, m) }

func (c *tcpProbeConn) Close() error { return c.conn.Close() }

type wsProbeConn struct {
	conn *websocket.Conn
}

func (c *wsProbeConn) Read() (*protocol.Message, error) {
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, err
		}
		if mt == websocket.BinaryMessage {
			return protocol.DecodeMessage(data)
		}
	}
}

func (c *wsProbeConn) Write(m *protocol.Message) error {
	return c.conn.WriteMessage(websocket.BinaryMessage, m.Encode())
}

func (c *wsProbeConn) Close() error { return c.conn.Close() }

func dialProbe(ctx context.Context, addr string) (probeConn, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
		if err != nil {
			return nil, err
		}
		return &wsProbeConn{conn: ws}, nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &tcpProbeConn{conn: conn, r: bufio.NewReader(conn)}, nil
}

func runProbe(ctx context.Context, opts probeOptions, out *console.Console) error {
	conn, err := dialProbe(ctx, opts.addr)
	if err != nil {
		return errors.New("E301").WithDetail(opts.addr).Wrap(err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	out.Event(console.KindInfo, "connected to %s", opts.addr)
	p := &prober{conn: conn, out: out, opts: opts}
	if err := p.run(); err != nil {
		if ctx.Err() != nil {
			return errors.Newf(errors.CategoryCLI, "probe timed out").Wrap(ctx.Err())
		}
		return err
	}
	return nil
}

// prober plays the client side of one session.
type prober struct {
	conn    probeConn
	out     *console.Console
	opts    probeOptions
	self    protocol.ClientID
	started bool
	replies int
	leaving bool
}

func (p *prober) send(m *protocol.Message) error {
	p.out.Event(console.KindSent, "%s (%d bytes)", m.Type, m.Len())
	return p.conn.Write(m)
}

func (p *prober) run() error {
	if err := p.send(protocol.NewMessage(protocol.ConnectionRequested)); err != nil {
		return err
	}
	if p.opts.chat != "" {
		m, err := protocol.NewChatRequest([]string{p.opts.chat})
		if err != nil {
			return errors.New("E300").WithDetail("--chat").Wrap(err)
		}
		if err := p.send(m); err != nil {
			return err
		}
	}
	if err := p.send(protocol.NewReadyToStartChanged(true)); err != nil {
		return err
	}

	for {
		m, err := p.conn.Read()
		if err != nil {
			if stderrors.Is(err, io.EOF) && p.leaving {
				return nil
			}
			return errors.New("E302").Wrap(err)
		}
		done, err := p.handle(m)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (p *prober) handle(m *protocol.Message) (bool, error) {
	unexpected := func(err error) error {
		return errors.New("E303").WithDetail(m.Type.String()).Wrap(err)
	}

	switch m.Type {
	case protocol.ConnectionAccepted:
		self, roster, err := protocol.ParseConnectionAccepted(m)
		if err != nil {
			return false, unexpected(err)
		}
		p.self = self
		p.out.Event(console.KindJoin, "accepted as client %d, roster %v", self, roster)

	case protocol.UserStatusUpdate:
		changes, err := protocol.ParseUserStatusUpdate(m)
		if err != nil {
			return false, unexpected(err)
		}
		for _, c := range changes {
			p.out.Event(console.KindReceived, "client %d is %s", c.ID, c.Status)
		}

	case protocol.ChatUpdate:
		lines, err := protocol.ParseChatUpdate(m)
		if err != nil {
			return false, unexpected(err)
		}
		for _, l := range lines {
			p.out.Event(console.KindChat, "<%d> %s", l.Author, l.Text)
		}

	case protocol.ReadyToStart:
		p.out.Event(console.KindPhase, "roster complete, countdown begins")

	case protocol.GameAboutToStart:
		n, err := protocol.ParseGameAboutToStart(m)
		if err != nil {
			return false, unexpected(err)
		}
		p.out.Event(console.KindPhase, "starting in %d", n)

	case protocol.GameStarting:
		p.started = true
		p.out.Event(console.KindPhase, "game started")

	case protocol.StubMessage:
		lines, err := protocol.ParseStub(m)
		if err != nil {
			return false, unexpected(err)
		}
		p.replies++
		p.out.Event(console.KindReceived, "server reply %d: %s", p.replies, strings.Join(lines, " / "))
		if p.replies >= p.opts.rounds {
			p.leaving = true
			return false, p.send(protocol.NewMessage(protocol.ConnectionRejected))
		}
		return false, p.send(protocol.NewMessageWithPayload(protocol.StubMessage, []byte(p.opts.input)))

	case protocol.ConnectionRejected:
		if p.leaving {
			p.out.Event(console.KindLeave, "left after %d replies", p.replies)
			return true, nil
		}
		return false, errors.New("E302").WithDetail(fmt.Sprintf("client %d rejected", p.self))

	default:
		p.out.Event(console.KindWarn, "ignoring %s", m.Type)
	}
	return false, nil
}
