package engine

// packet is an engine-owned buffer. refs counts queued sends that still need
// the buffer; a packet is released when it is destroyed with no references,
// or when the last reference drops after a destroy or a completed send.
type packet struct {
	handle    Handle
	data      []byte
	flags     PacketFlag
	refs      int
	sent      bool // was queued at least once
	destroyed bool // destroy requested while still referenced
	free      func(Handle)
}

// PacketCreate copies data into a new engine packet.
func (e *Engine) PacketCreate(data []byte, flags PacketFlag) Handle {
	if len(data) > MaxPacketSize {
		return 0
	}

	e.lock()
	defer e.unlock()

	buf := make([]byte, len(data))
	copy(buf, data)

	h := e.nextHandle()
	e.packets[h] = &packet{handle: h, data: buf, flags: flags}
	return h
}

// PacketDestroy frees the packet, or defers the free until pending sends no
// longer reference it. Unknown handles are ignored.
func (e *Engine) PacketDestroy(h Handle) {
	e.lock()
	defer e.unlock()

	p, ok := e.packets[h]
	if !ok {
		return
	}
	if p.refs > 0 {
		p.destroyed = true
		return
	}
	e.releasePacket(p)
}

// PacketData returns the packet's buffer, or nil for unknown handles. Callers
// must treat the slice as read-only and must not use it after the packet is
// freed.
func (e *Engine) PacketData(h Handle) []byte {
	e.lock()
	defer e.unlock()

	if p, ok := e.packets[h]; ok {
		return p.data
	}
	return nil
}

// PacketFlags returns the packet's delivery flags.
func (e *Engine) PacketFlags(h Handle) PacketFlag {
	e.lock()
	defer e.unlock()

	if p, ok := e.packets[h]; ok {
		return p.flags
	}
	return 0
}

// PacketSetFreeCallback registers fn to run once when the packet is freed,
// replacing any earlier callback. A nil fn clears the slot.
func (e *Engine) PacketSetFreeCallback(h Handle, fn func(Handle)) {
	e.lock()
	defer e.unlock()

	if p, ok := e.packets[h]; ok {
		p.free = fn
	}
}

// retainPacket records one more queued send. Requires mu.
func (e *Engine) retainPacket(p *packet) {
	p.refs++
	p.sent = true
}

// dropPacketRef ends one queued send. A sent packet whose last reference is
// gone is finished, as is one whose destroy was deferred. Requires mu.
func (e *Engine) dropPacketRef(h Handle) {
	p, ok := e.packets[h]
	if !ok {
		return
	}
	if p.refs > 0 {
		p.refs--
	}
	if p.refs == 0 && (p.sent || p.destroyed) {
		e.releasePacket(p)
	}
}

// releasePacket removes the packet and schedules its free callback. Requires mu.
func (e *Engine) releasePacket(p *packet) {
	delete(e.packets, p.handle)
	p.data = nil
	if fn := p.free; fn != nil {
		p.free = nil
		h := p.handle
		e.later(func() { fn(h) })
	}
}
