package ws

import (
	"context"
	"dominicbreuker/goenet/pkg/log"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// Listen serves WebSocket upgrades on addr and returns a PacketConn that
// exchanges datagrams with every connected client. Up to 100 clients are
// served at once; more receive HTTP 503.
func Listen(ctx context.Context, addr string, logger *log.Logger) (*PacketConn, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.ResolveTCPAddr(tcp, %s): %w", addr, err)
	}
	nl, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("net.ListenTCP(tcp, %s): %w", tcpAddr, err)
	}

	local := nl.Addr().(*net.TCPAddr)
	p := newPacketConn(ctx, &net.UDPAddr{IP: local.IP, Port: local.Port}, logger)

	sem := make(chan struct{}, maxClients)
	for i := 0; i < maxClients; i++ {
		sem <- struct{}{}
	}

	server := &http.Server{
		Handler: p.handler(sem),

		// Timeouts for long-lived connections
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}
	p.closeServer = server.Close

	go func() {
		err := server.Serve(nl)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.fail(fmt.Errorf("http.Server.Serve(): %w", err))
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Close()
		case <-p.closeCh:
		}
	}()

	return p, nil
}

func (p *PacketConn) handler(sem chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-sem:
			defer func() { sem <- struct{}{} }()
		default:
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}

		remote, err := udpAddr(r.RemoteAddr)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols: []string{subprotocol},
		})
		if err != nil {
			p.logger.ErrorMsg("websocket.Accept(): %s\n", err)
			return
		}
		c.SetReadLimit(maxMessageSize)

		// Prevent panic from leaking resources
		defer func() {
			if rec := recover(); rec != nil {
				p.logger.ErrorMsg("WebSocket handler panic: %v\n", rec)
			}
		}()

		p.logger.VerboseMsg("New WS connection from %s", remote)
		err = p.serve(&remoteConn{
			addr: remote,
			c:    c,
			out:  make(chan []byte, queueSize),
			done: make(chan struct{}),
		})
		if err != nil && !isClosed(err) {
			p.logger.VerboseMsg("WS connection from %s: %s", remote, err)
		}
	}
}
