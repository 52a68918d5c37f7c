// Package enet is the application-facing runtime of goenet. A Host owns one
// socket and a set of Peers; each Peer carries several independent channels
// over which Packets travel. A Host's servicing loop polls the protocol engine
// on a timer and turns what it reports into connect, disconnect, message and
// telex notifications on the Host and the affected Peer.
//
// Notifications found by servicing are delivered on the servicing goroutine
// of the Host, one at a time. DisconnectNow, Destroy and socket errors notify
// on the goroutine that triggered them, which may overlap a servicing pass.
// A received Packet is only valid while its message listeners run.
package enet

import (
	"dominicbreuker/goenet/pkg/engine"
	"errors"
	"sync"
)

// Errors reported to callbacks and returned from operations.
var (
	ErrHostCreation     = errors.New("host creation failed")
	ErrSocketCreation   = errors.New("socket creation failed")
	ErrHostDestroyed    = errors.New("host destroyed")
	ErrPeerDisconnected = errors.New("peer is disconnected")
	ErrNotQueued        = errors.New("packet not queued")
	ErrMaxPeers         = errors.New("maximum number of peers reached")
	ErrConnectFailed    = errors.New("connect failed")
	ErrPeerNotConnected = errors.New("peer not connected")
	ErrQueuingError     = errors.New("packet queuing error")
	ErrPacketCreation   = errors.New("packet creation failed")
)

// Flag controls how a packet is delivered.
type Flag = engine.PacketFlag

// Packet flags.
const (
	FlagReliable           = engine.FlagReliable
	FlagUnsequenced        = engine.FlagUnsequenced
	FlagUnreliableFragment = engine.FlagUnreliableFragment
)

// State is a peer's connection state.
type State = engine.PeerState

// Peer states.
const (
	StateDisconnected            = engine.PeerStateDisconnected
	StateConnecting              = engine.PeerStateConnecting
	StateAcknowledgingConnect    = engine.PeerStateAcknowledgingConnect
	StateConnectionPending       = engine.PeerStateConnectionPending
	StateConnectionSucceeded     = engine.PeerStateConnectionSucceeded
	StateConnected               = engine.PeerStateConnected
	StateDisconnectLater         = engine.PeerStateDisconnectLater
	StateDisconnecting           = engine.PeerStateDisconnecting
	StateAcknowledgingDisconnect = engine.PeerStateAcknowledgingDisconnect
	StateZombie                  = engine.PeerStateZombie
)

// MaxPacketSize is the largest payload a Packet can carry.
const MaxPacketSize = engine.MaxPacketSize

// TelexFilter decides whether an out-of-band datagram from address:port is
// reported by hosts.
type TelexFilter func(address string, port uint16) bool

var (
	telexMu     sync.RWMutex
	telexFilter TelexFilter
)

// Init installs the process-wide telex filter consulted by every host for
// out-of-band datagrams. A nil filter accepts everything.
func Init(fn TelexFilter) {
	telexMu.Lock()
	defer telexMu.Unlock()
	telexFilter = fn
}

// interceptTelex adapts the installed filter to the engine.
func interceptTelex(from engine.Address, _ []byte) bool {
	telexMu.RLock()
	fn := telexFilter
	telexMu.RUnlock()

	if fn == nil {
		return true
	}
	return fn(from.IP(), from.Port())
}
