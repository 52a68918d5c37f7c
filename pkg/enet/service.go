package enet

import "dominicbreuker/goenet/pkg/engine"

// Service drains every occurrence the engine has queued for the host and
// notifies listeners about each. It never blocks. A call made while another
// pass is running, for example from a listener, returns immediately.
func (h *Host) Service() {
	if !h.servicing.CompareAndSwap(false, true) {
		return
	}
	defer h.servicing.Store(false)

	for {
		hh, ev := h.pollable()
		if hh == 0 {
			return
		}

		n := h.eng.HostService(hh, ev, 0)
		if n < 0 {
			if !h.IsOffline() {
				h.logger.ErrorMsg("host_service(): %d\n", n)
			}
			return
		}
		if n == 0 {
			return
		}

		// listeners may poll again, so work on a copy of the scratch record
		h.dispatch(hh, *ev)
	}
}

// pollable returns the native handle and event record if the host can still
// be polled.
func (h *Host) pollable() (engine.Handle, *engine.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.offline() || h.event == nil {
		return 0, nil
	}
	return h.handle, h.event
}

func (h *Host) dispatch(hh engine.Handle, ev engine.Event) {
	switch ev.Type {
	case engine.EventConnect:
		h.handleConnect(ev)
	case engine.EventDisconnect:
		h.handleDisconnect(ev)
	case engine.EventReceive:
		h.handleReceive(ev)
	case engine.EventTelex:
		h.handleTelex(hh, ev)
	default:
		h.logger.VerboseMsg("service: ignoring event type %d", ev.Type)
	}
}

func (h *Host) handleConnect(ev engine.Event) {
	p, known := h.resolve(ev.Peer)
	if p == nil {
		return
	}

	if known {
		for _, fn := range p.onConnect.snapshot() {
			fn()
		}
	}
	for _, fn := range h.onConnect.snapshot() {
		fn(p, ev.Data, known)
	}
}

func (h *Host) handleDisconnect(ev engine.Event) {
	h.mu.Lock()
	p, ok := h.peers[ev.Peer]
	if ok {
		delete(h.peers, ev.Peer)
		p.cacheAddress()
		p.handle = 0
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	h.emitDisconnect(p, ev.Data)
}

func (h *Host) handleReceive(ev engine.Event) {
	pkt := borrowPacket(h.eng, ev.Packet)
	defer pkt.Destroy()

	p, _ := h.resolve(ev.Peer)
	if p == nil {
		return
	}

	for _, fn := range h.onMessage.snapshot() {
		fn(p, pkt, ev.ChannelID)
	}
	for _, fn := range p.onMessage.snapshot() {
		fn(pkt, ev.ChannelID)
	}
}

func (h *Host) handleTelex(hh engine.Handle, ev engine.Event) {
	defer h.eng.PacketDestroy(ev.Packet)

	from := h.eng.HostReceivedAddress(hh)
	payload := append([]byte(nil), h.eng.PacketData(ev.Packet)...)

	for _, fn := range h.onTelex.snapshot() {
		fn(payload, from)
	}
}

// resolve returns the registered peer for ph, registering a new one if the
// handle has not been seen. known reports whether it was registered before.
// A host that went offline meanwhile resolves nothing.
func (h *Host) resolve(ph engine.Handle) (p *Peer, known bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.offline() || ph == 0 {
		return nil, false
	}
	if p, ok := h.peers[ph]; ok {
		return p, true
	}

	addr, _ := h.eng.PeerAddress(ph)
	p = newPeer(h, ph, addr)
	h.peers[ph] = p
	return p, false
}
