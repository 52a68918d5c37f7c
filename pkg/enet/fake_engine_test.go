package enet

import (
	"dominicbreuker/goenet/pkg/engine"
	"net"
	"sync"
	"time"
)

// fakeEngine scripts the occurrences HostService hands out and records the
// calls the runtime makes.
type fakeEngine struct {
	mu sync.Mutex

	last     engine.Handle
	cfg      engine.HostConfig
	conn     net.PacketConn
	events   []engine.Event
	received engine.Address
	result   int // returned by HostService when negative

	packets map[engine.Handle]*fakePacket
	states  map[engine.Handle]engine.PeerState
	addrs   map[engine.Handle]engine.Address

	services        int
	sent            []fakeSend
	disconnectedNow []engine.Handle
	resets          []engine.Handle
	destroyed       bool
	refuseConnect   bool
	refuseSend      bool

	// during runs inside HostService before an event is handed out
	during func()
}

type fakePacket struct {
	data  []byte
	flags engine.PacketFlag
	free  func(engine.Handle)
}

type fakeSend struct {
	peer    engine.Handle
	channel uint8
	data    []byte
}

var _ Engine = (*fakeEngine)(nil)

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		packets: make(map[engine.Handle]*fakePacket),
		states:  make(map[engine.Handle]engine.PeerState),
		addrs:   make(map[engine.Handle]engine.Address),
	}
}

func (f *fakeEngine) next() engine.Handle {
	f.last++
	return f.last
}

// push queues an occurrence.
func (f *fakeEngine) push(ev engine.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

// incoming registers a remote peer in the connected state and returns its handle.
func (f *fakeEngine) incoming(addr engine.Address) engine.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	ph := f.next()
	f.states[ph] = engine.PeerStateConnected
	f.addrs[ph] = addr
	return ph
}

// receive creates an engine packet for a Receive or Telex occurrence.
func (f *fakeEngine) receive(data []byte) engine.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.next()
	f.packets[h] = &fakePacket{data: data}
	return h
}

func (f *fakeEngine) hasPacket(h engine.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.packets[h]
	return ok
}

func (f *fakeEngine) setState(ph engine.Handle, s engine.PeerState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[ph] = s
}

func (f *fakeEngine) serviceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.services
}

func (f *fakeEngine) sends() []fakeSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeSend(nil), f.sent...)
}

// written frees every packet a send referenced, as the engine does once the
// data is out.
func (f *fakeEngine) written(h engine.Handle) {
	f.PacketDestroy(h)
}

func (f *fakeEngine) HostCreate(conn net.PacketConn, cfg engine.HostConfig) engine.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn = conn
	f.cfg = cfg
	return f.next()
}

func (f *fakeEngine) HostDestroy(engine.Handle) {
	f.mu.Lock()
	f.destroyed = true
	conn := f.conn
	f.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (f *fakeEngine) HostService(_ engine.Handle, ev *engine.Event, _ time.Duration) int {
	f.mu.Lock()
	f.services++
	during := f.during
	f.mu.Unlock()

	if during != nil {
		during()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		return -1
	}
	if f.result < 0 {
		return f.result
	}
	if len(f.events) == 0 {
		*ev = engine.Event{}
		return 0
	}
	*ev = f.events[0]
	f.events = f.events[1:]
	if ev.Type == engine.EventDisconnect {
		delete(f.states, ev.Peer)
	}
	return 1
}

func (f *fakeEngine) HostConnect(_ engine.Handle, addr engine.Address, _ int, _ uint32) engine.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refuseConnect {
		return 0
	}
	ph := f.next()
	f.states[ph] = engine.PeerStateConnecting
	f.addrs[ph] = addr
	return ph
}

func (f *fakeEngine) HostFlush(engine.Handle) {}

func (f *fakeEngine) HostBroadcast(_ engine.Handle, channel uint8, pkt engine.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ph, s := range f.states {
		if s == engine.PeerStateConnected {
			f.sent = append(f.sent, fakeSend{peer: ph, channel: channel, data: f.packets[pkt].data})
		}
	}
}

func (f *fakeEngine) HostCompress(engine.Handle, bool) {}

func (f *fakeEngine) HostBandwidthLimit(engine.Handle, uint32, uint32) {}

func (f *fakeEngine) HostBandwidthThrottle(engine.Handle) {}

func (f *fakeEngine) HostSocket(engine.Handle) net.PacketConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn
}

func (f *fakeEngine) HostReceivedAddress(engine.Handle) engine.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received
}

func (f *fakeEngine) PeerSend(ph engine.Handle, channel uint8, pkt engine.Handle) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.packets[pkt]
	if f.refuseSend || !ok || f.states[ph] != engine.PeerStateConnected {
		return -1
	}
	f.sent = append(f.sent, fakeSend{peer: ph, channel: channel, data: p.data})
	return 0
}

func (f *fakeEngine) PeerDisconnect(ph engine.Handle, _ uint32) {
	f.setState(ph, engine.PeerStateDisconnecting)
}

func (f *fakeEngine) PeerDisconnectNow(ph engine.Handle, _ uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, ph)
	f.disconnectedNow = append(f.disconnectedNow, ph)
}

func (f *fakeEngine) PeerDisconnectLater(ph engine.Handle, _ uint32) {
	f.setState(ph, engine.PeerStateDisconnectLater)
}

func (f *fakeEngine) PeerReset(ph engine.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, ph)
	f.resets = append(f.resets, ph)
}

func (f *fakeEngine) PeerPing(engine.Handle) {}

func (f *fakeEngine) PeerState(ph engine.Handle) engine.PeerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[ph]
}

func (f *fakeEngine) PeerAddress(ph engine.Handle) (engine.Address, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.addrs[ph]
	return a, ok
}

func (f *fakeEngine) PeerIncomingDataTotal(engine.Handle) uint32 { return 0 }

func (f *fakeEngine) PeerOutgoingDataTotal(engine.Handle) uint32 { return 0 }

func (f *fakeEngine) PacketCreate(data []byte, flags engine.PacketFlag) engine.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.next()
	f.packets[h] = &fakePacket{data: append([]byte(nil), data...), flags: flags}
	return h
}

func (f *fakeEngine) PacketDestroy(h engine.Handle) {
	f.mu.Lock()
	p, ok := f.packets[h]
	delete(f.packets, h)
	f.mu.Unlock()

	if ok && p.free != nil {
		p.free(h)
	}
}

func (f *fakeEngine) PacketData(h engine.Handle) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.packets[h]; ok {
		return p.data
	}
	return nil
}

func (f *fakeEngine) PacketFlags(h engine.Handle) engine.PacketFlag {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.packets[h]; ok {
		return p.flags
	}
	return 0
}

func (f *fakeEngine) PacketSetFreeCallback(h engine.Handle, fn func(engine.Handle)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.packets[h]; ok {
		p.free = fn
	}
}
