package engine

import (
	"net"
	"sync"
	"time"

	"github.com/xtaci/kcp-go/v5"
)

// queued is one occurrence waiting to be returned by HostService.
type queued struct {
	ev   Event
	from Address // sender of a Telex occurrence
}

type host struct {
	handle   Handle
	cfg      HostConfig
	demux    *demux
	listener *kcp.Listener

	peers map[Handle]*peer
	queue []queued

	// wake is signalled when the queue grows, done is closed on destroy
	wake chan struct{}
	done chan struct{}

	// lingering counts sessions waiting to close after a final disconnect
	lingering sync.WaitGroup

	compress     bool
	received     Address
	lastThrottle time.Time
	failed       bool
	destroyed    bool
}

// blockCrypt returns a fresh cipher for one session, nil without a key.
func (c HostConfig) blockCrypt() (kcp.BlockCrypt, error) {
	if len(c.Key) == 0 {
		return nil, nil
	}
	return kcp.NewAESBlockCrypt(c.Key)
}

// HostCreate starts a host on conn and returns its handle, or 0 on failure.
// The host owns conn from now on and closes it in HostDestroy.
func (e *Engine) HostCreate(conn net.PacketConn, cfg HostConfig) Handle {
	if conn == nil {
		return 0
	}

	h := &host{
		cfg:   cfg.withDefaults(),
		peers: make(map[Handle]*peer),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	h.demux = newDemux(conn,
		func(from net.Addr, payload []byte) { e.handleOutOfBand(h, from, payload) },
		func(err error) { e.handleSocketError(h, err) },
	)

	block, err := h.cfg.blockCrypt()
	if err != nil {
		e.logger.VerboseMsg("host key: %s", err)
		return 0
	}
	listener, err := kcp.ServeConn(block, 0, 0, h.demux.fallback)
	if err != nil {
		e.logger.VerboseMsg("kcp.ServeConn(): %s", err)
		return 0
	}
	h.listener = listener

	e.lock()
	h.handle = e.nextHandle()
	h.lastThrottle = time.Now()
	e.hosts[h.handle] = h
	e.unlock()

	e.goSafe("socket reader", h.demux.run)
	e.goSafe("accept loop", func() { e.acceptLoop(h) })

	return h.handle
}

// HostDestroy resets every peer of the host, discards pending occurrences and
// closes the socket. Disconnects sent just before still reach the remote
// hosts: the socket stays open until their sessions are closed. Unknown
// handles are ignored.
func (e *Engine) HostDestroy(hh Handle) {
	e.lock()
	h, ok := e.hosts[hh]
	if !ok {
		e.unlock()
		return
	}
	h.destroyed = true
	delete(e.hosts, hh)
	close(h.done)

	var closers []func()
	for _, p := range h.peers {
		e.dropOutgoing(p)
		delete(e.peers, p.handle)
		p.state = PeerStateDisconnected
		if !p.closed {
			p.closed = true
			closers = append(closers, p.closer())
		}
	}
	h.peers = make(map[Handle]*peer)

	for _, q := range h.queue {
		if p, ok := e.packets[q.ev.Packet]; ok {
			e.releasePacket(p)
		}
	}
	h.queue = nil
	e.unlock()

	for _, fn := range closers {
		fn()
	}
	h.lingering.Wait()
	h.listener.Close()
	if err := h.demux.close(); err != nil {
		e.logger.VerboseMsg("closing host socket: %s", err)
	}
}

// HostService checks timers, flushes queued sends and stores the next
// occurrence in ev. It waits up to timeout for one to arrive. The result is 1
// when ev was filled, 0 when there was nothing to report and -1 when the host
// is unknown or its socket failed.
func (e *Engine) HostService(hh Handle, ev *Event, timeout time.Duration) int {
	e.lock()
	h, ok := e.hosts[hh]
	if !ok || h.failed {
		e.unlock()
		return -1
	}
	e.maintain(h, time.Now())
	n := e.pop(h, ev)
	e.unlock()

	if n != 0 || timeout <= 0 {
		return n
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-h.wake:
	case <-t.C:
	case <-h.done:
		return -1
	}

	e.lock()
	defer e.unlock()
	if h.destroyed || h.failed {
		return -1
	}
	return e.pop(h, ev)
}

// HostConnect starts a connection to addr and returns the new peer, or 0 when
// the host is at its peer limit or already has a peer at that address. The
// connect occurrence is reported by HostService once the remote host answers.
func (e *Engine) HostConnect(hh Handle, addr Address, channels int, data uint32) Handle {
	e.lock()
	defer e.unlock()

	h, ok := e.hosts[hh]
	if !ok || h.failed {
		return 0
	}
	if h.active() >= h.cfg.MaxPeers {
		return 0
	}
	if channels <= 0 {
		channels = DefaultMaxChannels
	}
	if channels > h.cfg.MaxChannels {
		channels = h.cfg.MaxChannels
	}

	raddr := addr.UDPAddr()
	vconn, ok := h.demux.open(raddr)
	if !ok {
		return 0
	}
	block, err := h.cfg.blockCrypt()
	if err != nil {
		vconn.Close()
		return 0
	}
	sess, err := kcp.NewConn(raddr.String(), block, 0, 0, vconn)
	if err != nil {
		e.logger.VerboseMsg("kcp.NewConn(%s): %s", raddr, err)
		vconn.Close()
		return 0
	}
	configureSession(sess)

	p := e.newPeer(h, sess, addr)
	p.vconn = vconn
	p.state = PeerStateConnecting
	p.channels = channels

	e.enqueue(p, frame{
		cmd:     cmdConnect,
		channel: uint8(channels),
		data:    data,
		payload: connectPayload(h.cfg.DownstreamBandwidth, h.cfg.UpstreamBandwidth),
	})
	e.flushPeer(p, time.Now())

	e.goSafe("peer reader", func() { e.readLoop(p) })
	return p.handle
}

// HostFlush writes every peer's queued frames as far as the send windows and
// bandwidth limits allow.
func (e *Engine) HostFlush(hh Handle) {
	e.lock()
	defer e.unlock()

	h, ok := e.hosts[hh]
	if !ok {
		return
	}
	now := time.Now()
	for _, p := range h.peers {
		e.flushPeer(p, now)
	}
}

// HostBroadcast queues pkt to every connected peer. A packet nobody took is
// destroyed.
func (e *Engine) HostBroadcast(hh Handle, channel uint8, pkt Handle) {
	e.lock()
	defer e.unlock()

	h, ok := e.hosts[hh]
	if !ok {
		return
	}
	pk, ok := e.packets[pkt]
	if !ok {
		return
	}
	for _, p := range h.peers {
		if p.state != PeerStateConnected || int(channel) >= p.channels {
			continue
		}
		e.queueSend(p, channel, pk)
	}
	if pk.refs == 0 {
		e.releasePacket(pk)
	}
}

// HostCompress switches frame compression for sends queued from now on.
func (e *Engine) HostCompress(hh Handle, enabled bool) {
	e.lock()
	defer e.unlock()

	if h, ok := e.hosts[hh]; ok {
		h.compress = enabled
	}
}

// HostBandwidthLimit changes the host's limits in bytes per second and
// advertises the new downstream limit to connected peers.
func (e *Engine) HostBandwidthLimit(hh Handle, down, up uint32) {
	e.lock()
	defer e.unlock()

	h, ok := e.hosts[hh]
	if !ok {
		return
	}
	h.cfg.DownstreamBandwidth = down
	h.cfg.UpstreamBandwidth = up

	now := time.Now()
	for _, p := range h.peers {
		if p.state != PeerStateConnected {
			continue
		}
		e.enqueue(p, frame{cmd: cmdBandwidthLimit, payload: connectPayload(down, up)})
		e.flushPeer(p, now)
	}
	e.throttle(h, now)
}

// HostBandwidthThrottle recomputes the per-peer send rates immediately.
func (e *Engine) HostBandwidthThrottle(hh Handle) {
	e.lock()
	defer e.unlock()

	if h, ok := e.hosts[hh]; ok {
		e.throttle(h, time.Now())
	}
}

// HostSocket returns the socket the host was created on, or nil.
func (e *Engine) HostSocket(hh Handle) net.PacketConn {
	e.lock()
	defer e.unlock()

	if h, ok := e.hosts[hh]; ok {
		return h.demux.conn
	}
	return nil
}

// HostReceivedAddress returns the sender of the last Telex occurrence
// returned by HostService.
func (e *Engine) HostReceivedAddress(hh Handle) Address {
	e.lock()
	defer e.unlock()

	if h, ok := e.hosts[hh]; ok {
		return h.received
	}
	return Address{}
}

// active counts peers that still occupy a slot. Requires mu.
func (h *host) active() int {
	n := 0
	for _, p := range h.peers {
		if p.state != PeerStateZombie && p.state != PeerStateDisconnected {
			n++
		}
	}
	return n
}

// push appends an occurrence and wakes a waiting HostService. Requires mu.
func (h *host) push(q queued) {
	h.queue = append(h.queue, q)
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// pop moves the oldest occurrence into ev. Requires mu.
func (e *Engine) pop(h *host, ev *Event) int {
	if len(h.queue) == 0 {
		h.queue = nil
		*ev = Event{}
		return 0
	}
	q := h.queue[0]
	h.queue[0] = queued{}
	h.queue = h.queue[1:]
	*ev = q.ev

	switch q.ev.Type {
	case EventTelex:
		h.received = q.from
	case EventDisconnect:
		if p, ok := e.peers[q.ev.Peer]; ok && p.state == PeerStateZombie {
			e.removePeer(p)
		}
	}
	return 1
}

// purge drops every queued occurrence that refers to peer. Requires mu.
func (e *Engine) purge(h *host, peer Handle) {
	kept := h.queue[:0]
	for _, q := range h.queue {
		if q.ev.Peer != peer {
			kept = append(kept, q)
			continue
		}
		if p, ok := e.packets[q.ev.Packet]; ok {
			e.releasePacket(p)
		}
	}
	for i := len(kept); i < len(h.queue); i++ {
		h.queue[i] = queued{}
	}
	h.queue = kept
}

// maintain runs the per-service timers of every peer. Requires mu.
func (e *Engine) maintain(h *host, now time.Time) {
	if now.Sub(h.lastThrottle) >= throttleInterval {
		e.throttle(h, now)
	}

	for _, p := range h.peers {
		switch p.state {
		case PeerStateConnecting, PeerStateDisconnecting:
			if now.Sub(p.since) > h.cfg.ConnectTimeout {
				e.zombie(p, 0)
				e.closePeer(p, false)
				continue
			}
		case PeerStateConnected, PeerStateDisconnectLater:
			if now.Sub(p.lastRecv) > h.cfg.PeerTimeout {
				e.zombie(p, 0)
				e.closePeer(p, false)
				continue
			}
			if now.Sub(p.lastSend) >= h.cfg.PingInterval && len(p.outgoing) == 0 {
				e.enqueue(p, frame{cmd: cmdPing})
			}
		}
		e.flushPeer(p, now)
	}
}

// acceptLoop hands every new KCP session of the listener to a handshake.
func (e *Engine) acceptLoop(h *host) {
	for {
		sess, err := h.listener.AcceptKCP()
		if err != nil {
			return
		}
		configureSession(sess)
		e.goSafe("handshake", func() { e.handshake(h, sess) })
	}
}

// handshake waits for the connect frame of an incoming session, registers the
// peer and answers with verify-connect.
func (e *Engine) handshake(h *host, sess *kcp.UDPSession) {
	_ = sess.SetReadDeadline(time.Now().Add(h.cfg.ConnectTimeout))
	f, err := readFrame(sess)
	if err != nil || f.cmd != cmdConnect {
		sess.Close()
		return
	}
	_ = sess.SetReadDeadline(time.Time{})

	e.lock()
	if h.destroyed || h.active() >= h.cfg.MaxPeers {
		e.unlock()
		sess.Close()
		return
	}

	channels := int(f.channel)
	if channels <= 0 {
		channels = 1
	}
	if channels > h.cfg.MaxChannels {
		channels = h.cfg.MaxChannels
	}

	now := time.Now()
	p := e.newPeer(h, sess, AddressFromNet(sess.RemoteAddr()))
	p.state = PeerStateConnected
	p.channels = channels
	p.remoteDown, _ = parseConnectPayload(f.payload)
	p.incoming += uint32(4 + frameHeaderSize + len(f.payload))

	e.enqueue(p, frame{
		cmd:     cmdVerifyConnect,
		channel: uint8(channels),
		payload: connectPayload(h.cfg.DownstreamBandwidth, h.cfg.UpstreamBandwidth),
	})
	e.flushPeer(p, now)

	h.push(queued{ev: Event{Type: EventConnect, Peer: p.handle, Data: f.data}})
	e.throttle(h, now)
	e.unlock()

	e.readLoop(p)
}

// handleOutOfBand turns an untagged datagram into a Telex occurrence.
func (e *Engine) handleOutOfBand(h *host, from net.Addr, payload []byte) {
	addr := AddressFromNet(from)
	if h.cfg.Intercept != nil && !h.cfg.Intercept(addr, payload) {
		return
	}

	e.lock()
	defer e.unlock()

	if h.destroyed || len(payload) > MaxPacketSize {
		return
	}
	ph := e.nextHandle()
	e.packets[ph] = &packet{handle: ph, data: payload}
	h.push(queued{ev: Event{Type: EventTelex, Packet: ph}, from: addr})
}

// handleSocketError marks the host failed so HostService reports it.
func (e *Engine) handleSocketError(h *host, err error) {
	e.lock()
	defer e.unlock()

	if h.destroyed || h.failed {
		return
	}
	h.failed = true
	select {
	case h.wake <- struct{}{}:
	default:
	}
	if fn := h.cfg.OnSocketError; fn != nil {
		e.later(func() { fn(err) })
	}
}

func configureSession(sess *kcp.UDPSession) {
	sess.SetNoDelay(1, 10, 2, 1)
	sess.SetStreamMode(true)
	sess.SetWindowSize(1024, 1024)
}
