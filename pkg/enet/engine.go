package enet

import (
	"dominicbreuker/goenet/pkg/engine"
	"net"
	"time"
)

// Engine is the protocol engine surface the runtime drives. *engine.Engine
// implements it.
type Engine interface {
	HostCreate(conn net.PacketConn, cfg engine.HostConfig) engine.Handle
	HostDestroy(h engine.Handle)
	HostService(h engine.Handle, ev *engine.Event, timeout time.Duration) int
	HostConnect(h engine.Handle, addr engine.Address, channels int, data uint32) engine.Handle
	HostFlush(h engine.Handle)
	HostBroadcast(h engine.Handle, channel uint8, pkt engine.Handle)
	HostCompress(h engine.Handle, enabled bool)
	HostBandwidthLimit(h engine.Handle, down, up uint32)
	HostBandwidthThrottle(h engine.Handle)
	HostSocket(h engine.Handle) net.PacketConn
	HostReceivedAddress(h engine.Handle) engine.Address

	PeerSend(p engine.Handle, channel uint8, pkt engine.Handle) int
	PeerDisconnect(p engine.Handle, data uint32)
	PeerDisconnectNow(p engine.Handle, data uint32)
	PeerDisconnectLater(p engine.Handle, data uint32)
	PeerReset(p engine.Handle)
	PeerPing(p engine.Handle)
	PeerState(p engine.Handle) engine.PeerState
	PeerAddress(p engine.Handle) (engine.Address, bool)
	PeerIncomingDataTotal(p engine.Handle) uint32
	PeerOutgoingDataTotal(p engine.Handle) uint32

	PacketCreate(data []byte, flags engine.PacketFlag) engine.Handle
	PacketDestroy(h engine.Handle)
	PacketData(h engine.Handle) []byte
	PacketFlags(h engine.Handle) engine.PacketFlag
	PacketSetFreeCallback(h engine.Handle, fn func(engine.Handle))
}

var _ Engine = (*engine.Engine)(nil)
