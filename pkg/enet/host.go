package enet

import (
	"dominicbreuker/goenet/pkg/config"
	"dominicbreuker/goenet/pkg/crypto"
	"dominicbreuker/goenet/pkg/engine"
	"dominicbreuker/goenet/pkg/log"
	"dominicbreuker/goenet/pkg/transport/udp"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type mode int

const (
	modeServer mode = iota
	modeClient
	modeCustom
)

func (m mode) String() string {
	switch m {
	case modeServer:
		return "server"
	case modeClient:
		return "client"
	case modeCustom:
		return "custom"
	}
	return "unknown"
}

// Host owns a socket and the peers connected through it.
type Host struct {
	eng    Engine
	mode   mode
	cfg    *config.Host
	logger *log.Logger

	mu           sync.Mutex
	handle       engine.Handle
	event        *engine.Event
	socket       net.PacketConn
	peers        map[engine.Handle]*Peer
	shuttingDown bool
	socketClosed bool
	ready        bool
	created      func(*Host, error)
	stopTimer    chan struct{}

	servicing atomic.Bool

	onConnect    listeners[func(p *Peer, data uint32, local bool)]
	onDisconnect listeners[func(p *Peer, data uint32)]
	onMessage    listeners[func(p *Peer, pkt *Packet, channel uint8)]
	onTelex      listeners[func(payload []byte, from Address)]
	onError      listeners[func(err error)]
	onDestroy    listeners[func()]
}

// CreateServer binds cfg.Address and starts servicing. cb receives the host,
// or the bind error, before CreateServer returns.
func CreateServer(cfg *config.Host, cb func(*Host, error)) *Host {
	return create(engine.Default(), modeServer, cfg, cb)
}

// CreateClient binds an ephemeral port, or cfg.Address if set, and starts
// servicing. cb runs on a new goroutine so listeners can be attached to the
// returned host first. Creation errors are reported before it returns.
func CreateClient(cfg *config.Host, cb func(*Host, error)) *Host {
	return create(engine.Default(), modeClient, cfg, cb)
}

// CreateServerFromSocket adopts cfg.CustomSocket. The host closes the socket
// when it is destroyed.
func CreateServerFromSocket(cfg *config.Host, cb func(*Host, error)) *Host {
	return create(engine.Default(), modeCustom, cfg, cb)
}

func create(eng Engine, m mode, cfg *config.Host, cb func(*Host, error)) *Host {
	c := config.Default()
	c.Merge(cfg)

	fail := func(err error) *Host {
		if cb != nil {
			cb(nil, err)
		}
		return nil
	}

	if errs := c.Validate(); len(errs) > 0 {
		return fail(fmt.Errorf("%w: %w", ErrHostCreation, errors.Join(errs...)))
	}

	h := &Host{
		eng:     eng,
		mode:    m,
		cfg:     c,
		logger:  log.NewLogger(c.Verbose),
		peers:   make(map[engine.Handle]*Peer),
		created: cb,
	}

	conn, err := h.openSocket()
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrSocketCreation, err))
	}

	hh := eng.HostCreate(conn, engine.HostConfig{
		MaxPeers:            c.MaxPeers,
		MaxChannels:         c.MaxChannels,
		DownstreamBandwidth: c.DownstreamBandwidthLimit,
		UpstreamBandwidth:   c.UpstreamBandwidthLimit,
		PingInterval:        c.PingInterval,
		PeerTimeout:         c.PeerTimeout,
		ConnectTimeout:      c.ConnectTimeout,
		Intercept:           interceptTelex,
		OnSocketError:       h.socketError,
		Key:                 sessionKey(c.Key),
	})
	if hh == 0 {
		conn.Close()
		return fail(ErrHostCreation)
	}
	if c.Compress {
		eng.HostCompress(hh, true)
	}

	h.mu.Lock()
	h.handle = hh
	h.socket = conn
	h.event = &engine.Event{}
	h.mu.Unlock()

	h.logger.VerboseMsg("%s host on %s", m, conn.LocalAddr())
	h.FirstStart()

	h.mu.Lock()
	h.ready = true
	h.mu.Unlock()

	if cb != nil {
		if m == modeClient {
			go cb(h, nil)
		} else {
			cb(h, nil)
		}
	}
	return h
}

func sessionKey(secret string) []byte {
	if secret == "" {
		return nil
	}
	return crypto.DeriveKey(secret)
}

func (h *Host) openSocket() (net.PacketConn, error) {
	if h.mode == modeCustom {
		if h.cfg.CustomSocket == nil {
			return nil, fmt.Errorf("no custom socket configured")
		}
		return h.cfg.CustomSocket, nil
	}

	conn, err := udp.Listener(h.cfg.Deps)("udp4", h.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen(%s): %w", h.cfg.Address, err)
	}
	return conn, nil
}

// socketError takes the host offline for good. Errors other than a plain
// close are reported to the creation callback if the host is not ready yet,
// to the error listeners otherwise.
func (h *Host) socketError(err error) {
	h.mu.Lock()
	if h.socketClosed || h.shuttingDown {
		h.mu.Unlock()
		return
	}
	h.socketClosed = true
	ready, created := h.ready, h.created
	h.mu.Unlock()

	if !errors.Is(err, net.ErrClosed) {
		if !ready && created != nil && h.mode == modeServer {
			created(nil, fmt.Errorf("%w: %w", ErrSocketCreation, err))
		} else {
			h.logger.VerboseMsg("socket error: %s", err)
			h.emitError(err)
		}
	}
	h.Destroy()
}

// IsOffline reports whether the host was destroyed or lost its socket.
func (h *Host) IsOffline() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.offline()
}

// IsOnline is !IsOffline().
func (h *Host) IsOnline() bool {
	return !h.IsOffline()
}

// offline requires mu.
func (h *Host) offline() bool {
	return h.handle == 0 || h.shuttingDown || h.socketClosed
}

// live returns the native handle, or 0 if the host is offline.
func (h *Host) live() engine.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.offline() {
		return 0
	}
	return h.handle
}

// Connect starts connecting to addr with the given number of channels and
// connect data. cb, if not nil, receives the outcome exactly once: the peer
// once the connection is established, or an error. Errors found right away
// are also returned.
func (h *Host) Connect(addr Address, channels int, data uint32, cb func(*Peer, error)) (*Peer, error) {
	report := func(p *Peer, err error) {
		if cb != nil {
			cb(p, err)
		}
	}

	// the registry stays locked until the peer and its listeners are in
	// place, so a connect event cannot be serviced before
	h.mu.Lock()
	if h.offline() {
		h.mu.Unlock()
		report(nil, ErrHostDestroyed)
		return nil, ErrHostDestroyed
	}

	ph := h.eng.HostConnect(h.handle, addr, channels, data)
	if ph == 0 {
		err := fmt.Errorf("connect(%s): %w", addr, ErrConnectFailed)
		if len(h.peers) >= h.cfg.MaxPeers {
			err = fmt.Errorf("connect(%s): %w", addr, ErrMaxPeers)
		}
		h.mu.Unlock()
		report(nil, err)
		return nil, err
	}

	p := newPeer(h, ph, addr)
	h.peers[ph] = p

	if cb != nil {
		var once sync.Once
		var removeConnect, removeDisconnect, removeReset func()
		done := func(p *Peer, err error) {
			once.Do(func() {
				removeConnect()
				removeDisconnect()
				removeReset()
				cb(p, err)
			})
		}
		failed := func() { done(nil, fmt.Errorf("connect(%s): %w", addr, ErrConnectFailed)) }
		removeConnect = p.onConnect.add(func() { done(p, nil) })
		removeDisconnect = p.onDisconnect.add(func(uint32) { failed() })
		removeReset = p.onReset.add(failed)
	}
	h.mu.Unlock()

	h.FirstStart()
	return p, nil
}

// Broadcast queues pkt on channel for every connected peer.
func (h *Host) Broadcast(channel uint8, pkt *Packet) error {
	hh := h.live()
	if hh == 0 {
		return ErrHostDestroyed
	}
	ph := pkt.current()
	if ph == 0 {
		return ErrNotQueued
	}
	h.eng.HostBroadcast(hh, channel, ph)
	return nil
}

// BroadcastBytes broadcasts a reliable copy of data.
func (h *Host) BroadcastBytes(channel uint8, data []byte) error {
	if h.IsOffline() {
		return ErrHostDestroyed
	}
	pkt, err := h.NewPacket(data, FlagReliable)
	if err != nil {
		return err
	}
	return h.Broadcast(channel, pkt)
}

// Send writes buf as a raw datagram to ip:port, outside of any peer.
// Receiving hosts report it as telex, unless buf starts with the engine's
// tag byte 0xe7, which makes them treat it as engine traffic.
func (h *Host) Send(ip string, port uint16, buf []byte) error {
	hh := h.live()
	if hh == 0 {
		return ErrHostDestroyed
	}
	to, err := AddressFromIP(ip, port)
	if err != nil {
		return fmt.Errorf("send(%s:%d): %w", ip, port, err)
	}
	sock := h.eng.HostSocket(hh)
	if sock == nil {
		return ErrHostDestroyed
	}
	if _, err := sock.WriteTo(buf, to.UDPAddr()); err != nil {
		return fmt.Errorf("WriteTo(%s): %w", to, err)
	}
	return nil
}

// Flush writes queued sends without waiting for the next service pass.
func (h *Host) Flush() error {
	hh := h.live()
	if hh == 0 {
		return ErrHostDestroyed
	}
	h.eng.HostFlush(hh)
	return nil
}

// EnableCompression compresses payloads sent from now on.
func (h *Host) EnableCompression() error {
	return h.compress(true)
}

// DisableCompression stops compressing payloads.
func (h *Host) DisableCompression() error {
	return h.compress(false)
}

func (h *Host) compress(enabled bool) error {
	hh := h.live()
	if hh == 0 {
		return ErrHostDestroyed
	}
	h.eng.HostCompress(hh, enabled)
	return nil
}

// ThrottleBandwidth recomputes the per-peer send rates right away.
func (h *Host) ThrottleBandwidth() error {
	hh := h.live()
	if hh == 0 {
		return ErrHostDestroyed
	}
	h.eng.HostBandwidthThrottle(hh)
	return nil
}

// SetBandwidthLimit changes the host's bandwidth limits in bytes per second,
// 0 meaning unlimited, and tells connected peers.
func (h *Host) SetBandwidthLimit(down, up uint32) error {
	hh := h.live()
	if hh == 0 {
		return ErrHostDestroyed
	}
	h.eng.HostBandwidthLimit(hh, down, up)
	return nil
}

// Peers returns the registered peers ordered by handle.
func (h *Host) Peers() []*Peer {
	h.mu.Lock()
	defer h.mu.Unlock()

	peers := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].handle < peers[j].handle })
	return peers
}

// Address returns the local address of the host's socket.
func (h *Host) Address() Address {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.socket == nil {
		return Address{}
	}
	return engine.AddressFromNet(h.socket.LocalAddr())
}

// ReceivedAddress returns the sender of the most recent telex.
func (h *Host) ReceivedAddress() Address {
	hh := h.live()
	if hh == 0 {
		return Address{}
	}
	return h.eng.HostReceivedAddress(hh)
}

// NewPacket copies data into a packet of this host's engine.
func (h *Host) NewPacket(data []byte, flags Flag) (*Packet, error) {
	return newPacket(h.eng, data, flags)
}

// Start services the host every interval, replacing a running timer.
// A non-positive interval selects the configured one.
func (h *Host) Start(interval time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.start(interval)
}

// FirstStart starts the timer unless it is running already.
func (h *Host) FirstStart() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopTimer == nil {
		h.start(0)
	}
}

// start requires mu.
func (h *Host) start(interval time.Duration) {
	if h.offline() {
		return
	}
	if interval <= 0 {
		interval = h.cfg.Interval
	}
	if h.stopTimer != nil {
		close(h.stopTimer)
	}
	stop := make(chan struct{})
	h.stopTimer = stop
	go h.run(interval, stop)
}

func (h *Host) run(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			h.tick()
		}
	}
}

// tick is one timer-driven service pass. Listener panics end up here.
func (h *Host) tick() {
	defer func() {
		if r := recover(); r != nil {
			h.logger.ErrorMsg("service: listener panic: %v\n", r)
		}
	}()
	h.Service()
}

// Stop is Destroy.
func (h *Host) Stop() {
	h.Destroy()
}

// Destroy disconnects every peer immediately, reporting a disconnect with
// data 0 for each, releases the native host and notifies destroy listeners.
// Later calls do nothing.
func (h *Host) Destroy() {
	h.mu.Lock()
	if h.shuttingDown {
		h.mu.Unlock()
		return
	}
	h.shuttingDown = true
	if h.stopTimer != nil {
		close(h.stopTimer)
		h.stopTimer = nil
	}

	type gone struct {
		peer   *Peer
		handle engine.Handle
	}
	var peers []gone
	for ph, p := range h.peers {
		p.cacheAddress()
		p.handle = 0
		peers = append(peers, gone{peer: p, handle: ph})
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].handle < peers[j].handle })
	h.peers = make(map[engine.Handle]*Peer)

	hh := h.handle
	h.handle = 0
	h.event = nil
	h.mu.Unlock()

	if hh != 0 {
		for _, g := range peers {
			h.eng.PeerDisconnectNow(g.handle, 0)
		}
		h.eng.HostFlush(hh)
		h.eng.HostDestroy(hh)
	}
	h.logger.VerboseMsg("%s host destroyed", h.mode)

	for _, g := range peers {
		h.emitDisconnect(g.peer, 0)
	}
	for _, fn := range h.onDestroy.snapshot() {
		fn()
	}
}

// OnConnect registers fn for established connections. local is true for
// connections this host initiated. The returned function removes fn.
func (h *Host) OnConnect(fn func(p *Peer, data uint32, local bool)) func() {
	return h.onConnect.add(fn)
}

// OnDisconnect registers fn for peers leaving the host.
func (h *Host) OnDisconnect(fn func(p *Peer, data uint32)) func() {
	return h.onDisconnect.add(fn)
}

// OnMessage registers fn for received packets. The packet is destroyed once
// all message listeners returned.
func (h *Host) OnMessage(fn func(p *Peer, pkt *Packet, channel uint8)) func() {
	return h.onMessage.add(fn)
}

// OnTelex registers fn for out-of-band datagrams.
func (h *Host) OnTelex(fn func(payload []byte, from Address)) func() {
	return h.onTelex.add(fn)
}

// OnError registers fn for socket errors. The host destroys itself after.
func (h *Host) OnError(fn func(err error)) func() {
	return h.onError.add(fn)
}

// OnDestroy registers fn to run once the host is destroyed.
func (h *Host) OnDestroy(fn func()) func() {
	return h.onDestroy.add(fn)
}

func (h *Host) emitError(err error) {
	for _, fn := range h.onError.snapshot() {
		fn(err)
	}
}

// emitDisconnect notifies the peer and then the host.
func (h *Host) emitDisconnect(p *Peer, data uint32) {
	for _, fn := range p.onDisconnect.snapshot() {
		fn(data)
	}
	for _, fn := range h.onDisconnect.snapshot() {
		fn(p, data)
	}
}
