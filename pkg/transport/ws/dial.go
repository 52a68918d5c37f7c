package ws

import (
	"context"
	"dominicbreuker/goenet/pkg/log"
	"fmt"
	"net"
	"net/url"

	"github.com/coder/websocket"
)

// Dial connects to a WebSocket server at rawURL (ws://host:port/path) and
// returns a PacketConn whose single remote is the server. Datagrams read
// from it carry Remote() as their source.
func Dial(ctx context.Context, rawURL string, logger *log.Logger) (*PacketConn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("url.Parse(%s): %w", rawURL, err)
	}
	remote, err := udpAddr(u.Host)
	if err != nil {
		return nil, err
	}

	c, _, err := websocket.Dial(ctx, rawURL, &websocket.DialOptions{
		Subprotocols: []string{subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("websocket.Dial(%s): %w", rawURL, err)
	}
	c.SetReadLimit(maxMessageSize)

	p := newPacketConn(context.Background(), &net.UDPAddr{IP: net.IPv4zero}, logger)
	p.dialed = remote
	r := &remoteConn{
		addr: remote,
		c:    c,
		out:  make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
	p.remote[remote.String()] = r

	go func() {
		err := p.serve(r)
		if isClosed(err) {
			_ = p.Close()
			return
		}
		p.fail(fmt.Errorf("websocket connection to %s: %w", remote, err))
	}()

	return p, nil
}

// Remote returns the address of the dialed server, or nil for a listening
// PacketConn.
func (p *PacketConn) Remote() net.Addr {
	return p.dialed
}
