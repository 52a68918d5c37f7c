package engine

import (
	"errors"
	"net"
	"time"

	"github.com/xtaci/kcp-go/v5"
	"golang.org/x/time/rate"
)

type outgoing struct {
	buf    []byte
	packet Handle // 0 for control frames
}

type peer struct {
	handle Handle
	host   *host
	sess   *kcp.UDPSession
	vconn  *virtualConn // set for peers this host connected out to
	addr   Address

	state    PeerState
	channels int
	since    time.Time // when the current connect or disconnect started

	outgoing       []outgoing
	disconnectData uint32

	limiter    *rate.Limiter
	remoteDown uint32

	incoming      uint32
	outgoingTotal uint32
	lastRecv      time.Time
	lastSend      time.Time

	// closed is set once the session is being torn down on purpose
	closed bool
}

// newPeer registers a peer for sess. Requires mu.
func (e *Engine) newPeer(h *host, sess *kcp.UDPSession, addr Address) *peer {
	now := time.Now()
	p := &peer{
		handle:   e.nextHandle(),
		host:     h,
		sess:     sess,
		addr:     addr,
		since:    now,
		lastRecv: now,
		lastSend: now,
	}
	e.peers[p.handle] = p
	h.peers[p.handle] = p
	return p
}

// PeerSend queues pkt on channel. It returns 0 on success and -1 when the
// peer is not connected, the channel is out of range or the packet unknown.
func (e *Engine) PeerSend(ph Handle, channel uint8, pkt Handle) int {
	e.lock()
	defer e.unlock()

	p, ok := e.peers[ph]
	if !ok || p.state != PeerStateConnected || int(channel) >= p.channels {
		return -1
	}
	pk, ok := e.packets[pkt]
	if !ok {
		return -1
	}
	e.queueSend(p, channel, pk)
	return 0
}

// PeerDisconnect starts a graceful disconnect. The disconnect occurrence is
// reported once the remote host acknowledges or the attempt times out.
func (e *Engine) PeerDisconnect(ph Handle, data uint32) {
	e.lock()
	defer e.unlock()

	if p, ok := e.peers[ph]; ok {
		e.disconnect(p, data)
	}
}

// PeerDisconnectLater disconnects gracefully once every queued send is out.
func (e *Engine) PeerDisconnectLater(ph Handle, data uint32) {
	e.lock()
	defer e.unlock()

	p, ok := e.peers[ph]
	if !ok {
		return
	}
	if p.state != PeerStateConnected || len(p.outgoing) == 0 {
		e.disconnect(p, data)
		return
	}
	p.state = PeerStateDisconnectLater
	p.disconnectData = data
	e.flushPeer(p, time.Now())
}

// PeerDisconnectNow tells the remote host once, without waiting for an
// acknowledgement, and forgets the peer. No occurrence is reported.
func (e *Engine) PeerDisconnectNow(ph Handle, data uint32) {
	e.lock()
	defer e.unlock()

	p, ok := e.peers[ph]
	if !ok {
		return
	}
	e.dropOutgoing(p)
	linger := false
	if p.state == PeerStateConnected || p.state == PeerStateDisconnectLater || p.state == PeerStateDisconnecting {
		e.enqueue(p, frame{cmd: cmdDisconnect, data: data})
		e.flushPeer(p, time.Now())
		linger = true
	}
	e.purge(p.host, p.handle)
	e.removePeer(p)
	e.closePeer(p, linger)
}

// PeerReset drops the peer without telling the remote host.
func (e *Engine) PeerReset(ph Handle) {
	e.lock()
	defer e.unlock()

	p, ok := e.peers[ph]
	if !ok {
		return
	}
	e.dropOutgoing(p)
	e.purge(p.host, p.handle)
	e.removePeer(p)
	e.closePeer(p, false)
}

// PeerPing queues a keepalive.
func (e *Engine) PeerPing(ph Handle) {
	e.lock()
	defer e.unlock()

	if p, ok := e.peers[ph]; ok && p.state == PeerStateConnected {
		e.enqueue(p, frame{cmd: cmdPing})
		e.flushPeer(p, time.Now())
	}
}

// PeerState reports the peer's state. Unknown peers are disconnected.
func (e *Engine) PeerState(ph Handle) PeerState {
	e.lock()
	defer e.unlock()

	if p, ok := e.peers[ph]; ok {
		return p.state
	}
	return PeerStateDisconnected
}

// PeerAddress returns the remote address of the peer.
func (e *Engine) PeerAddress(ph Handle) (Address, bool) {
	e.lock()
	defer e.unlock()

	if p, ok := e.peers[ph]; ok {
		return p.addr, true
	}
	return Address{}, false
}

// PeerIncomingDataTotal returns the frame bytes received from the peer.
func (e *Engine) PeerIncomingDataTotal(ph Handle) uint32 {
	e.lock()
	defer e.unlock()

	if p, ok := e.peers[ph]; ok {
		return p.incoming
	}
	return 0
}

// PeerOutgoingDataTotal returns the frame bytes written to the peer.
func (e *Engine) PeerOutgoingDataTotal(ph Handle) uint32 {
	e.lock()
	defer e.unlock()

	if p, ok := e.peers[ph]; ok {
		return p.outgoingTotal
	}
	return 0
}

// queueSend encodes pk for channel and queues it. Requires mu.
func (e *Engine) queueSend(p *peer, channel uint8, pk *packet) {
	buf := encodeFrame(frame{cmd: cmdSend, channel: channel, flags: pk.flags, payload: pk.data}, p.host.compress)
	e.retainPacket(pk)
	p.outgoing = append(p.outgoing, outgoing{buf: buf, packet: pk.handle})
}

// enqueue queues a control frame. Requires mu.
func (e *Engine) enqueue(p *peer, f frame) {
	p.outgoing = append(p.outgoing, outgoing{buf: encodeFrame(f, false)})
}

// dropOutgoing discards queued frames, releasing their packets. Requires mu.
func (e *Engine) dropOutgoing(p *peer) {
	for _, o := range p.outgoing {
		if o.packet != 0 {
			e.dropPacketRef(o.packet)
		}
	}
	p.outgoing = nil
}

// flushPeer writes queued frames until the KCP send window is full or the
// bandwidth limiter says stop. Requires mu.
func (e *Engine) flushPeer(p *peer, now time.Time) {
	if p.closed {
		return
	}

	for len(p.outgoing) > 0 {
		o := p.outgoing[0]
		if o.packet != 0 && p.limiter != nil && !p.limiter.AllowN(now, len(o.buf)) {
			break
		}

		// a deadline in the past makes a full send window fail fast
		_ = p.sess.SetWriteDeadline(now)
		if _, err := p.sess.Write(o.buf); err != nil {
			if isTimeout(err) {
				break
			}
			e.logger.VerboseMsg("peer %s: write: %s", p.addr, err)
			e.zombie(p, 0)
			e.closePeer(p, false)
			return
		}

		p.outgoing[0] = outgoing{}
		p.outgoing = p.outgoing[1:]
		p.lastSend = now
		p.outgoingTotal += uint32(len(o.buf))
		if o.packet != 0 {
			e.dropPacketRef(o.packet)
		}
	}

	if len(p.outgoing) == 0 {
		p.outgoing = nil
		if p.state == PeerStateDisconnectLater {
			e.disconnect(p, p.disconnectData)
		}
	}
}

// disconnect sends a disconnect frame to a connected peer. Peers still
// connecting are given up on right away. Requires mu.
func (e *Engine) disconnect(p *peer, data uint32) {
	switch p.state {
	case PeerStateConnected, PeerStateDisconnectLater:
		e.dropOutgoing(p)
		p.state = PeerStateDisconnecting
		p.since = time.Now()
		e.enqueue(p, frame{cmd: cmdDisconnect, data: data})
		e.flushPeer(p, p.since)
	case PeerStateConnecting, PeerStateAcknowledgingConnect, PeerStateConnectionPending, PeerStateConnectionSucceeded:
		e.dropOutgoing(p)
		e.zombie(p, 0)
		e.closePeer(p, false)
	}
}

// zombie reports the peer as disconnected. It stays registered until
// HostService hands out the occurrence. Requires mu.
func (e *Engine) zombie(p *peer, data uint32) {
	if p.state == PeerStateZombie || p.state == PeerStateDisconnected {
		return
	}
	e.dropOutgoing(p)
	p.state = PeerStateZombie
	p.host.push(queued{ev: Event{Type: EventDisconnect, Peer: p.handle, Data: data}})
}

// removePeer unregisters the peer. Requires mu.
func (e *Engine) removePeer(p *peer) {
	p.state = PeerStateDisconnected
	delete(e.peers, p.handle)
	delete(p.host.peers, p.handle)
}

// closePeer tears the session down, after a short delay when frames written
// just before still need to reach the remote host. Requires mu.
func (e *Engine) closePeer(p *peer, linger bool) {
	if p.closed {
		return
	}
	p.closed = true
	fn := p.closer()
	if linger {
		h := p.host
		h.lingering.Add(1)
		time.AfterFunc(disconnectLinger, func() {
			defer h.lingering.Done()
			fn()
		})
		return
	}
	e.later(fn)
}

func (p *peer) closer() func() {
	sess, vconn := p.sess, p.vconn
	return func() {
		sess.Close()
		if vconn != nil {
			vconn.Close()
		}
	}
}

// readLoop turns the frames of a peer's session into occurrences.
func (e *Engine) readLoop(p *peer) {
	for {
		f, err := readFrame(p.sess)
		if err != nil {
			e.lock()
			if !p.closed && !p.host.destroyed {
				e.logger.VerboseMsg("peer %s: read: %s", p.addr, err)
				e.zombie(p, 0)
				e.closePeer(p, false)
			}
			e.unlock()
			return
		}
		e.handleFrame(p, f)
	}
}

func (e *Engine) handleFrame(p *peer, f frame) {
	e.lock()
	defer e.unlock()

	if p.closed || p.host.destroyed {
		return
	}
	now := time.Now()
	p.lastRecv = now
	p.incoming += uint32(4 + frameHeaderSize + len(f.payload))

	switch f.cmd {
	case cmdVerifyConnect:
		if p.state != PeerStateConnecting {
			return
		}
		p.state = PeerStateConnected
		if ch := int(f.channel); ch > 0 && ch < p.channels {
			p.channels = ch
		}
		p.remoteDown, _ = parseConnectPayload(f.payload)
		p.host.push(queued{ev: Event{Type: EventConnect, Peer: p.handle}})
		e.throttle(p.host, now)

	case cmdSend:
		switch p.state {
		case PeerStateConnected, PeerStateDisconnectLater, PeerStateDisconnecting:
		default:
			return
		}
		if int(f.channel) >= p.channels || len(f.payload) > MaxPacketSize {
			return
		}
		ph := e.nextHandle()
		e.packets[ph] = &packet{handle: ph, data: f.payload, flags: f.flags}
		p.host.push(queued{ev: Event{Type: EventReceive, Peer: p.handle, Packet: ph, ChannelID: f.channel}})

	case cmdDisconnect:
		if p.state == PeerStateZombie {
			return
		}
		e.dropOutgoing(p)
		p.state = PeerStateAcknowledgingDisconnect
		e.enqueue(p, frame{cmd: cmdDisconnectAck})
		e.flushPeer(p, now)
		e.zombie(p, f.data)
		e.closePeer(p, true)

	case cmdDisconnectAck:
		if p.state != PeerStateDisconnecting {
			return
		}
		e.zombie(p, 0)
		e.closePeer(p, false)

	case cmdBandwidthLimit:
		p.remoteDown, _ = parseConnectPayload(f.payload)
		e.throttle(p.host, now)

	case cmdPing:
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
