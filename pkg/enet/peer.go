package enet

import (
	"dominicbreuker/goenet/pkg/engine"
	"fmt"
)

// Peer is one remote endpoint of a Host. A peer that was disconnected or
// reset is inert: its operations do nothing or fail, and its address stays
// readable.
type Peer struct {
	host *Host

	// guarded by host.mu
	handle    engine.Handle
	addr      Address
	addrKnown bool

	onConnect    listeners[func()]
	onDisconnect listeners[func(data uint32)]
	onMessage    listeners[func(pkt *Packet, channel uint8)]

	// onReset lets streams and pending connects see a reset, which is not
	// reported as a disconnect
	onReset listeners[func()]
}

func newPeer(h *Host, ph engine.Handle, addr Address) *Peer {
	p := &Peer{host: h, handle: ph, addr: addr}
	p.addrKnown = addr != (Address{})
	return p
}

// Host returns the host the peer belongs to.
func (p *Peer) Host() *Host {
	return p.host
}

// live returns the native handle, or 0 if the peer is inert or its host is
// offline.
func (p *Peer) live() engine.Handle {
	p.host.mu.Lock()
	defer p.host.mu.Unlock()
	if p.host.offline() {
		return 0
	}
	return p.handle
}

// invalidate removes the peer from the registry and makes it inert. It
// returns the handle it had, 0 if it was inert already.
func (p *Peer) invalidate() engine.Handle {
	h := p.host
	h.mu.Lock()
	defer h.mu.Unlock()

	ph := p.handle
	if ph == 0 || h.offline() {
		return 0
	}
	p.cacheAddress()
	delete(h.peers, ph)
	p.handle = 0
	return ph
}

// cacheAddress requires host.mu.
func (p *Peer) cacheAddress() {
	if p.addrKnown || p.handle == 0 {
		return
	}
	if addr, ok := p.host.eng.PeerAddress(p.handle); ok {
		p.addr = addr
		p.addrKnown = true
	}
}

// State returns the connection state. Inert peers are disconnected.
func (p *Peer) State() State {
	ph := p.live()
	if ph == 0 {
		return StateDisconnected
	}
	return p.host.eng.PeerState(ph)
}

// Address returns the remote address, also after the peer became inert.
func (p *Peer) Address() Address {
	p.host.mu.Lock()
	defer p.host.mu.Unlock()
	p.cacheAddress()
	return p.addr
}

// IncomingDataTotal returns the bytes received from the peer.
func (p *Peer) IncomingDataTotal() uint32 {
	ph := p.live()
	if ph == 0 {
		return 0
	}
	return p.host.eng.PeerIncomingDataTotal(ph)
}

// OutgoingDataTotal returns the bytes sent to the peer.
func (p *Peer) OutgoingDataTotal() uint32 {
	ph := p.live()
	if ph == 0 {
		return 0
	}
	return p.host.eng.PeerOutgoingDataTotal(ph)
}

// Send queues pkt on channel. cb, if not nil, becomes the packet's
// completion: it gets nil once the engine is done with the packet, or the
// reason it was not sent. If the packet could not be queued it is destroyed.
func (p *Peer) Send(channel uint8, pkt *Packet, cb func(error)) error {
	if pkt == nil {
		return fmt.Errorf("send(%d): %w", channel, ErrNotQueued)
	}

	err := p.sendable()
	if err != nil {
		if cb != nil {
			cb(err)
		}
		return err
	}

	if cb != nil {
		pkt.OnComplete(cb)
	}

	ph := p.live()
	if ph == 0 || p.host.eng.PeerSend(ph, channel, pkt.current()) != 0 {
		pkt.fail(ErrNotQueued)
		pkt.Destroy()
		return fmt.Errorf("send(%d): %w", channel, ErrNotQueued)
	}
	return nil
}

// SendBytes sends a reliable copy of data.
func (p *Peer) SendBytes(channel uint8, data []byte, cb func(error)) error {
	if err := p.sendable(); err != nil {
		if cb != nil {
			cb(err)
		}
		return err
	}

	pkt, err := p.host.NewPacket(data, FlagReliable)
	if err != nil {
		if cb != nil {
			cb(err)
		}
		return err
	}
	return p.Send(channel, pkt, cb)
}

func (p *Peer) sendable() error {
	h := p.host
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.offline() {
		return ErrHostDestroyed
	}
	if p.handle == 0 {
		return ErrPeerDisconnected
	}
	return nil
}

// Reset drops the peer without telling the remote host. No disconnect is
// reported, but its streams end and a pending Connect fails.
func (p *Peer) Reset() {
	ph := p.invalidate()
	if ph == 0 {
		return
	}
	p.host.eng.PeerReset(ph)
	for _, fn := range p.onReset.snapshot() {
		fn()
	}
}

// Disconnect asks the remote host to disconnect. The peer stays usable until
// the disconnect is serviced.
func (p *Peer) Disconnect(data uint32) {
	if ph := p.live(); ph != 0 {
		p.host.eng.PeerDisconnect(ph, data)
	}
}

// DisconnectNow tells the remote host once and drops the peer. The
// disconnect is reported before DisconnectNow returns.
func (p *Peer) DisconnectNow(data uint32) {
	ph := p.invalidate()
	if ph == 0 {
		return
	}
	p.host.eng.PeerDisconnectNow(ph, data)
	p.host.emitDisconnect(p, data)
}

// DisconnectLater disconnects once all queued sends are out.
func (p *Peer) DisconnectLater(data uint32) {
	if ph := p.live(); ph != 0 {
		p.host.eng.PeerDisconnectLater(ph, data)
	}
}

// Ping sends a keepalive.
func (p *Peer) Ping() {
	if ph := p.live(); ph != 0 {
		p.host.eng.PeerPing(ph)
	}
}

// OnConnect registers fn for the connection being established. The returned
// function removes fn.
func (p *Peer) OnConnect(fn func()) func() {
	return p.onConnect.add(fn)
}

// OnDisconnect registers fn for the peer disconnecting.
func (p *Peer) OnDisconnect(fn func(data uint32)) func() {
	return p.onDisconnect.add(fn)
}

// OnMessage registers fn for packets received from the peer.
func (p *Peer) OnMessage(fn func(pkt *Packet, channel uint8)) func() {
	return p.onMessage.add(fn)
}

func (p *Peer) String() string {
	return fmt.Sprintf("peer %s", p.Address())
}
