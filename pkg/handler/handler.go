// Package handler runs a stdio session over a connected goenet peer. A duplex
// channel stream carries a yamux session: its control stream
// exchanges Hello messages and one data stream is piped to stdio.
package handler

import (
	"context"
	"dominicbreuker/goenet/pkg/config"
	"dominicbreuker/goenet/pkg/enet"
	"dominicbreuker/goenet/pkg/log"
	"dominicbreuker/goenet/pkg/mux"
	"dominicbreuker/goenet/pkg/mux/msg"
	"dominicbreuker/goenet/pkg/pipeio"
	"fmt"
	"io"
	"net"
	"os"
)

// ProtocolVersion is announced in Hello. Endpoints with different versions
// refuse to talk.
const ProtocolVersion = "1"

// Side decides which end opens the mux session.
type Side int

// Sides of a session.
const (
	// SideConnect opens the session and the data stream.
	SideConnect Side = iota
	// SideListen accepts them.
	SideListen
)

func (s Side) String() string {
	if s == SideListen {
		return "listen"
	}
	return "connect"
}

// Handler pipes stdio through one peer.
type Handler struct {
	ctx  context.Context
	cfg  *config.Session
	side Side

	stream io.ReadWriteCloser
	sess   *mux.Session

	remote string
}

// New sets up the mux session over stream, a duplex stream of p. The stream
// must be created when p connects so no data arrives before it.
func New(ctx context.Context, cfg *config.Session, p *enet.Peer, stream io.ReadWriteCloser, side Side) (*Handler, error) {
	if stream == nil {
		return nil, fmt.Errorf("no stream: %w", enet.ErrPeerDisconnected)
	}
	return start(ctx, cfg, stream, side, p.Address().String())
}

func start(ctx context.Context, cfg *config.Session, stream io.ReadWriteCloser, side Side, remote string) (*Handler, error) {
	var sess *mux.Session
	var err error
	if side == SideConnect {
		sess, err = mux.Open(ctx, stream, cfg.GetTimeout())
	} else {
		sess, err = mux.Accept(ctx, stream, cfg.GetTimeout())
	}
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("starting mux session as %s: %w", side, err)
	}

	return &Handler{
		ctx:    ctx,
		cfg:    cfg,
		side:   side,
		stream: stream,
		sess:   sess,
		remote: remote,
	}, nil
}

// Close ends the mux session and detaches the stream from the peer.
func (h *Handler) Close() error {
	err := h.sess.Close()
	h.stream.Close()
	return err
}

// Handle greets the remote endpoint and pipes stdio through a data stream
// until either side is done.
func (h *Handler) Handle() error {
	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()

	if err := h.greet(ctx); err != nil {
		return err
	}
	log.InfoMsg("Session with %s established\n", h.remote)
	defer log.InfoMsg("Session with %s closed\n", h.remote)

	var data net.Conn
	var err error
	if h.side == SideConnect {
		data, err = h.sess.OpenStream(ctx)
	} else {
		data, err = h.sess.AcceptStream(ctx)
	}
	if err != nil {
		return fmt.Errorf("data stream: %w", err)
	}

	stdio := pipeio.NewStdio(h.cfg.Deps.Stdio())
	pipeio.Pipe(ctx, data, stdio, func(err error) {
		h.cfg.Logger.VerboseMsg("Piping stdio with %s: %s", h.remote, err)
	})

	return nil
}

// greet exchanges Hello messages. The connecting side speaks first.
func (h *Handler) greet(ctx context.Context) error {
	hello := msg.Hello{Version: ProtocolVersion, Name: hostname()}

	if h.side == SideConnect {
		if err := h.sess.Send(ctx, hello); err != nil {
			return fmt.Errorf("sending hello: %w", err)
		}
	}

	m, err := h.sess.Receive(ctx)
	if err != nil {
		return fmt.Errorf("receiving hello: %w", err)
	}

	switch message := m.(type) {
	case msg.Hello:
		if message.Version != ProtocolVersion {
			reason := fmt.Sprintf("protocol version %s, want %s", message.Version, ProtocolVersion)
			_ = h.sess.Send(ctx, msg.Bye{Reason: reason})
			return fmt.Errorf("%s: %s", h.remote, reason)
		}
		h.cfg.Logger.VerboseMsg("Hello from %s (%s)", h.remote, message.Name)
	case msg.Bye:
		return fmt.Errorf("%s hung up: %s", h.remote, message.Reason)
	default:
		return fmt.Errorf("unexpected message type '%s'", m.MsgType())
	}

	if h.side == SideListen {
		if err := h.sess.Send(ctx, hello); err != nil {
			return fmt.Errorf("sending hello: %w", err)
		}
	}
	return nil
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
