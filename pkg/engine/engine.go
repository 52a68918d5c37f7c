// Package engine is the reliable-datagram protocol engine that goenet hosts
// drive. It exposes a small handle-based surface in the manner of a native
// library: hosts, peers and packets are referenced by opaque Handles, a Handle
// of zero is always invalid, and every call on an unknown Handle is a safe
// no-op or returns an error value.
//
// Reliability and ordering come from KCP (github.com/xtaci/kcp-go/v5). Each
// peer is one KCP session carrying length-prefixed frames; all sessions of a
// host share one net.PacketConn through a small demultiplexer that also
// separates out-of-band datagrams.
//
// The Engine is safe for concurrent use. Free callbacks and socket error
// callbacks run after the engine lock has been released, so they may call
// back into the engine.
package engine

import (
	"dominicbreuker/goenet/pkg/log"
	"net"
	"sync"
	"time"
)

// Handle identifies an engine object. Zero is the invalid handle.
type Handle uint32

// EventType classifies the occurrence stored in an Event.
type EventType int

// Event types, numbered like the native library.
const (
	EventNone       EventType = 0
	EventConnect    EventType = 1
	EventDisconnect EventType = 2
	EventReceive    EventType = 3
	EventTelex      EventType = 100 // out-of-band datagram
)

// Event is the scratch record HostService fills in. Callers own the record
// and reuse it across calls.
type Event struct {
	Type      EventType
	Peer      Handle
	Packet    Handle
	ChannelID uint8
	Data      uint32
}

// PeerState is the connection state reported for a peer.
type PeerState int

// Peer states.
const (
	PeerStateDisconnected PeerState = iota
	PeerStateConnecting
	PeerStateAcknowledgingConnect
	PeerStateConnectionPending
	PeerStateConnectionSucceeded
	PeerStateConnected
	PeerStateDisconnectLater
	PeerStateDisconnecting
	PeerStateAcknowledgingDisconnect
	PeerStateZombie
)

var peerStateNames = [...]string{
	"disconnected", "connecting", "acknowledging-connect", "connection-pending",
	"connection-succeeded", "connected", "disconnect-later", "disconnecting",
	"acknowledging-disconnect", "zombie",
}

func (s PeerState) String() string {
	if s < 0 || int(s) >= len(peerStateNames) {
		return "unknown"
	}
	return peerStateNames[s]
}

// PacketFlag controls how a packet is delivered.
type PacketFlag uint8

// Packet flags.
const (
	FlagReliable           PacketFlag = 1
	FlagUnsequenced        PacketFlag = 1 << 1
	FlagUnreliableFragment PacketFlag = 1 << 3
)

// Limits and defaults.
const (
	DefaultMaxPeers    = 128
	DefaultMaxChannels = 5
	MaxChannels        = 255
	MaxPacketSize      = 64 << 10

	DefaultPingInterval   = 500 * time.Millisecond
	DefaultPeerTimeout    = 30 * time.Second
	DefaultConnectTimeout = 5 * time.Second

	throttleInterval = time.Second
	disconnectLinger = 250 * time.Millisecond
)

// InterceptFunc decides whether an out-of-band datagram is surfaced as a
// Telex event. Returning false drops it.
type InterceptFunc func(from Address, payload []byte) bool

// HostConfig parameterizes HostCreate. Zero values select defaults.
type HostConfig struct {
	MaxPeers            int
	MaxChannels         int
	DownstreamBandwidth uint32 // bytes/s, 0 = unlimited
	UpstreamBandwidth   uint32 // bytes/s, 0 = unlimited
	PingInterval        time.Duration
	PeerTimeout         time.Duration
	ConnectTimeout      time.Duration
	Intercept           InterceptFunc
	OnSocketError       func(error)

	// Key encrypts every session with AES when set. It must be 16, 24 or
	// 32 bytes long and the same on both ends.
	Key []byte
}

func (c HostConfig) withDefaults() HostConfig {
	if c.MaxPeers <= 0 {
		c.MaxPeers = DefaultMaxPeers
	}
	if c.MaxChannels <= 0 {
		c.MaxChannels = DefaultMaxChannels
	}
	if c.MaxChannels > MaxChannels {
		c.MaxChannels = MaxChannels
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PeerTimeout <= 0 {
		c.PeerTimeout = DefaultPeerTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	return c
}

// Engine owns the handle registries for hosts, peers and packets.
type Engine struct {
	mu      sync.Mutex
	last    Handle
	hosts   map[Handle]*host
	peers   map[Handle]*peer
	packets map[Handle]*packet

	// callbacks queued while holding mu, run by unlock
	pending []func()

	logger *log.Logger
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// New creates an empty engine. logger may be nil.
func New(logger *log.Logger) *Engine {
	return &Engine{
		hosts:   make(map[Handle]*host),
		peers:   make(map[Handle]*peer),
		packets: make(map[Handle]*packet),
		logger:  logger,
	}
}

// Default returns the process-wide engine.
func Default() *Engine {
	defaultOnce.Do(func() {
		defaultEngine = New(nil)
	})
	return defaultEngine
}

func (e *Engine) lock() {
	e.mu.Lock()
}

// unlock releases mu and then runs the callbacks queued while it was held.
func (e *Engine) unlock() {
	cbs := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, cb := range cbs {
		e.run(cb)
	}
}

// later queues fn to run once mu is released. Requires mu.
func (e *Engine) later(fn func()) {
	e.pending = append(e.pending, fn)
}

func (e *Engine) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorMsg("engine callback panic: %v\n", r)
		}
	}()
	fn()
}

// nextHandle allocates a fresh non-zero handle. Requires mu.
func (e *Engine) nextHandle() Handle {
	for {
		e.last++
		h := e.last
		if h == 0 {
			continue
		}
		if _, ok := e.hosts[h]; ok {
			continue
		}
		if _, ok := e.peers[h]; ok {
			continue
		}
		if _, ok := e.packets[h]; ok {
			continue
		}
		return h
	}
}

// goSafe runs fn on a new goroutine and logs instead of crashing on panic.
func (e *Engine) goSafe(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.ErrorMsg("%s panic: %v\n", name, r)
			}
		}()
		fn()
	}()
}

func udpAddr(addr net.Addr) *net.UDPAddr {
	if u, ok := addr.(*net.UDPAddr); ok {
		return u
	}
	return AddressFromNet(addr).UDPAddr()
}
