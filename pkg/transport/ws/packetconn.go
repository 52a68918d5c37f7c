// Package ws carries datagrams over WebSocket connections. Each binary
// message is one datagram. A PacketConn from Listen accepts any number of
// WebSocket clients and addresses each by its remote TCP address; one from
// Dial has a single remote, the server it dialed.
//
// goenet hosts use these as custom sockets when UDP is not available.
package ws

import (
	"context"
	"dominicbreuker/goenet/pkg/log"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	maxMessageSize = 64<<10 + 64
	queueSize      = 256
	maxClients     = 100
	subprotocol    = "bin"
)

type datagram struct {
	data []byte
	addr net.Addr
}

// PacketConn is a net.PacketConn over one or more WebSocket connections.
type PacketConn struct {
	ctx    context.Context
	cancel context.CancelFunc
	local  net.Addr
	logger *log.Logger

	mu     sync.Mutex
	remote map[string]*remoteConn
	err    error // set when a dialed connection failed

	in      chan datagram
	closeCh chan struct{}
	once    sync.Once

	// dialed is the server of a dialing PacketConn
	dialed net.Addr
	// closeServer stops the HTTP server of a listening PacketConn
	closeServer func() error
}

// remoteConn is one WebSocket connection with its own writer goroutine, so
// WriteTo never blocks on the network.
type remoteConn struct {
	addr *net.UDPAddr
	c    *websocket.Conn
	out  chan []byte
	done chan struct{}
}

func newPacketConn(ctx context.Context, local net.Addr, logger *log.Logger) *PacketConn {
	ctx, cancel := context.WithCancel(ctx)
	return &PacketConn{
		ctx:     ctx,
		cancel:  cancel,
		local:   local,
		logger:  logger,
		remote:  make(map[string]*remoteConn),
		in:      make(chan datagram, queueSize),
		closeCh: make(chan struct{}),
	}
}

// udpAddr maps a host:port string to the *net.UDPAddr peers are keyed by.
func udpAddr(hostport string) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return nil, fmt.Errorf("net.ResolveUDPAddr(udp, %s): %w", hostport, err)
	}
	return addr, nil
}

// serve registers r and reads its messages until the connection fails or p
// is closed.
func (p *PacketConn) serve(r *remoteConn) error {
	p.mu.Lock()
	p.remote[r.addr.String()] = r
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if cur, ok := p.remote[r.addr.String()]; ok && cur == r {
			delete(p.remote, r.addr.String())
		}
		p.mu.Unlock()
		close(r.done)
		_ = r.c.Close(websocket.StatusNormalClosure, "")
	}()

	go p.writeLoop(r)

	for {
		typ, data, err := r.c.Read(p.ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageBinary {
			continue
		}

		select {
		case p.in <- datagram{data: data, addr: r.addr}:
		case <-p.closeCh:
			return net.ErrClosed
		}
	}
}

func (p *PacketConn) writeLoop(r *remoteConn) {
	for {
		select {
		case buf := <-r.out:
			ctx, cancel := context.WithTimeout(p.ctx, 5*time.Second)
			err := r.c.Write(ctx, websocket.MessageBinary, buf)
			cancel()
			if err != nil {
				p.logger.VerboseMsg("websocket write to %s: %s", r.addr, err)
				return
			}
		case <-r.done:
			return
		}
	}
}

// ReadFrom reads a packet from the connection.
func (p *PacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case dg := <-p.in:
		return copy(b, dg.data), dg.addr, nil
	case <-p.closeCh:
		p.mu.Lock()
		err := p.err
		p.mu.Unlock()
		if err != nil {
			return 0, nil, err
		}
		return 0, nil, net.ErrClosed
	}
}

// WriteTo queues a message for the WebSocket connection of addr. Like UDP,
// datagrams for unknown addresses or congested connections are dropped.
func (p *PacketConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	select {
	case <-p.closeCh:
		return 0, net.ErrClosed
	default:
	}

	p.mu.Lock()
	r, ok := p.remote[addr.String()]
	p.mu.Unlock()
	if !ok {
		return len(b), nil
	}

	buf := make([]byte, len(b))
	copy(buf, b)
	select {
	case r.out <- buf:
	default:
	}
	return len(b), nil
}

// Close closes every WebSocket connection, and the HTTP server of a
// listening PacketConn.
func (p *PacketConn) Close() error {
	var err error
	p.once.Do(func() {
		close(p.closeCh)
		p.cancel()
		if p.closeServer != nil {
			err = p.closeServer()
		}
	})
	return err
}

// fail closes p so that ReadFrom reports err.
func (p *PacketConn) fail(err error) {
	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()
	_ = p.Close()
}

// LocalAddr returns the local network address.
func (p *PacketConn) LocalAddr() net.Addr {
	return p.local
}

func (p *PacketConn) SetDeadline(t time.Time) error      { return nil }
func (p *PacketConn) SetReadDeadline(t time.Time) error  { return nil }
func (p *PacketConn) SetWriteDeadline(t time.Time) error { return nil }

var _ net.PacketConn = (*PacketConn)(nil)

// isClosed reports errors that mean the connection was shut down on purpose.
func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		websocket.CloseStatus(err) == websocket.StatusNormalClosure
}
