// Package client connects to a listening goenet host and hands out the
// connected peer.
package client

import (
	"context"
	"dominicbreuker/goenet/pkg/config"
	"dominicbreuker/goenet/pkg/crypto"
	"dominicbreuker/goenet/pkg/enet"
	"dominicbreuker/goenet/pkg/log"
	"dominicbreuker/goenet/pkg/transport/udp"
	"dominicbreuker/goenet/pkg/transport/ws"
	"fmt"
	"io"
	"net"
)

// Client connects one host to a remote and keeps the resulting peer.
type Client struct {
	ctx context.Context
	cfg *config.Session

	host   *enet.Host
	peer   *enet.Peer
	stream io.ReadWriteCloser
}

// New returns a client for the transport in cfg. Nothing happens before
// Connect.
func New(ctx context.Context, cfg *config.Session) *Client {
	return &Client{
		ctx: ctx,
		cfg: cfg,
	}
}

// Close destroys the host, which disconnects the peer right away.
func (c *Client) Close() error {
	if c.host == nil {
		return nil
	}

	if c.peer != nil {
		log.InfoMsg("Connection to %s closed\n", c.peer.Address())
	}
	c.host.Destroy()
	return nil
}

// GetPeer returns the connected peer.
func (c *Client) GetPeer() *enet.Peer {
	return c.peer
}

// GetStream returns the duplex stream on the configured channel of the
// peer, created as soon as the peer connected.
func (c *Client) GetStream() io.ReadWriteCloser {
	return c.stream
}

// Connect creates a host and waits until its peer to the configured
// transport is connected.
func (c *Client) Connect() error {
	addr := c.cfg.Addr()

	log.InfoMsg("Connecting to %s\n", addr)

	hostCfg, remote, err := c.prepare(addr)
	if err != nil {
		return err
	}

	create := enet.CreateClient
	if hostCfg.CustomSocket != nil {
		create = enet.CreateServerFromSocket
	}

	created := make(chan error, 1)
	h := create(hostCfg, func(_ *enet.Host, err error) { created <- err })
	if err := <-created; err != nil {
		if h == nil && hostCfg.CustomSocket != nil {
			hostCfg.CustomSocket.Close()
		}
		return fmt.Errorf("creating host: %w", err)
	}
	c.host = h
	if hostCfg.Key != "" {
		c.cfg.Logger.VerboseMsg("Sessions encrypted with key %s", crypto.Fingerprint(crypto.DeriveKey(hostCfg.Key)))
	}

	// the stream is attached while the connect is dispatched, before any
	// message of the peer
	connected := make(chan error, 1)
	p, err := h.Connect(remote, c.cfg.GetChannels(), 0, func(p *enet.Peer, err error) {
		if err == nil {
			c.stream = p.CreateDuplexStream(uint8(c.cfg.Channel))
		}
		connected <- err
	})
	if err != nil {
		h.Destroy()
		return fmt.Errorf("Connect(%s): %w", remote, err)
	}

	select {
	case err := <-connected:
		if err != nil {
			h.Destroy()
			return fmt.Errorf("Connect(%s): %w", remote, err)
		}
	case <-c.ctx.Done():
		h.Destroy()
		return c.ctx.Err()
	}

	c.peer = p
	c.cfg.Logger.VerboseMsg("Connected to %s from %s", remote, h.Address())
	return nil
}

// prepare resolves the remote address and, for WebSocket transports or when
// datagrams are logged, opens the socket the host adopts.
func (c *Client) prepare(addr string) (*config.Host, enet.Address, error) {
	hostCfg := c.cfg.HostConfig()

	var remote enet.Address
	switch c.cfg.Protocol {
	case config.ProtoWS:
		pc, err := ws.Dial(c.ctx, "ws://"+addr, c.cfg.Logger)
		if err != nil {
			return nil, remote, fmt.Errorf("ws.Dial(%s): %w", addr, err)
		}
		remote = enet.AddressFromNet(pc.Remote())
		hostCfg.CustomSocket = pc

	default:
		ua, err := net.ResolveUDPAddr("udp4", addr)
		if err != nil {
			return nil, remote, fmt.Errorf("net.ResolveUDPAddr(udp4, %s): %w", addr, err)
		}
		remote = enet.AddressFromNet(ua)

		if c.cfg.LogFile != "" {
			local := hostCfg.Address
			if local == "" {
				local = config.DefaultAddress
			}
			pc, err := udp.Listener(c.cfg.Deps)("udp4", local)
			if err != nil {
				return nil, remote, fmt.Errorf("listening on %s: %w", local, err)
			}
			hostCfg.CustomSocket = pc
		}
	}

	if c.cfg.LogFile != "" {
		logged, err := log.NewLoggedPacketConn(hostCfg.CustomSocket, c.cfg.LogFile)
		if err != nil {
			hostCfg.CustomSocket.Close()
			return nil, remote, fmt.Errorf("enabling logging to %s: %w", c.cfg.LogFile, err)
		}
		hostCfg.CustomSocket = logged
	}

	return hostCfg, remote, nil
}
