package enet

import (
	"dominicbreuker/goenet/pkg/engine"
	"fmt"
	"sync"
)

// Packet is a buffer handed to the engine for delivery, or a received buffer
// borrowed from it while message listeners run.
//
// A packet created by the application owns an engine buffer. Once sent, the
// engine keeps the buffer until it has been written to every peer; the
// completion registered with OnComplete then fires with a nil error. It fires
// exactly once, also when the packet is destroyed or fails to be queued.
type Packet struct {
	eng Engine

	mu       sync.Mutex
	handle   engine.Handle
	owned    bool
	complete func(error)
}

// NewPacket copies data into a new packet of the process-wide engine.
func NewPacket(data []byte, flags Flag) (*Packet, error) {
	return newPacket(engine.Default(), data, flags)
}

// NewPacketString is NewPacket for text payloads.
func NewPacketString(s string, flags Flag) (*Packet, error) {
	return NewPacket([]byte(s), flags)
}

func newPacket(eng Engine, data []byte, flags Flag) (*Packet, error) {
	if len(data) > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes exceed %d", ErrPacketCreation, len(data), MaxPacketSize)
	}

	h := eng.PacketCreate(data, flags)
	if h == 0 {
		return nil, ErrPacketCreation
	}

	p := &Packet{eng: eng, handle: h, owned: true}
	eng.PacketSetFreeCallback(h, p.freed)
	return p, nil
}

// borrowPacket wraps a buffer the engine handed out with an event.
func borrowPacket(eng Engine, h engine.Handle) *Packet {
	return &Packet{eng: eng, handle: h}
}

// Data returns a read-only view of the payload. The view must not be used
// after Destroy or after the completion fired. A destroyed packet has no data.
func (p *Packet) Data() []byte {
	h := p.current()
	if h == 0 {
		return nil
	}
	return p.eng.PacketData(h)
}

// DataLength returns len(Data()).
func (p *Packet) DataLength() int {
	return len(p.Data())
}

// Flags returns the delivery flags.
func (p *Packet) Flags() Flag {
	h := p.current()
	if h == 0 {
		return 0
	}
	return p.eng.PacketFlags(h)
}

// Destroyed reports whether the packet no longer refers to an engine buffer.
func (p *Packet) Destroyed() bool {
	return p.current() == 0
}

// OnComplete registers fn as the completion, replacing an earlier one
// without calling it. If the packet is already gone fn runs right away.
func (p *Packet) OnComplete(fn func(error)) {
	p.mu.Lock()
	if p.handle == 0 {
		p.mu.Unlock()
		if fn != nil {
			fn(nil)
		}
		return
	}
	p.complete = fn
	p.mu.Unlock()
}

// Destroy releases the packet. Buffers still queued for sending are freed by
// the engine once written. Destroying twice is a no-op.
func (p *Packet) Destroy() {
	p.mu.Lock()
	h := p.handle
	p.handle = 0
	p.mu.Unlock()

	if h != 0 {
		p.eng.PacketDestroy(h)
	}
}

func (p *Packet) current() engine.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

// freed is the engine's free callback.
func (p *Packet) freed(h engine.Handle) {
	p.mu.Lock()
	if p.handle == h {
		p.handle = 0
	}
	fn := p.complete
	p.complete = nil
	p.mu.Unlock()

	if fn != nil {
		fn(nil)
	}
}

// fail fires the completion with err and detaches it.
func (p *Packet) fail(err error) {
	p.mu.Lock()
	fn := p.complete
	p.complete = nil
	p.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}
