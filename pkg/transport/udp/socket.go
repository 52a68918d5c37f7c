// Package udp creates the UDP sockets goenet hosts run on. Sockets allow
// broadcast and address reuse so a host can send out-of-band datagrams to a
// broadcast address and rebind quickly after a restart.
package udp

import (
	"context"
	"dominicbreuker/goenet/pkg/config"
	"fmt"
	"net"
	"syscall"
)

// ListenPacket binds a UDP socket on address with SO_BROADCAST and
// SO_REUSEADDR set. It matches config.PacketListenerFunc.
func ListenPacket(network, address string) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: control}

	conn, err := lc.ListenPacket(context.Background(), network, address)
	if err != nil {
		return nil, fmt.Errorf("ListenPacket(%s, %s): %w", network, address, err)
	}
	return conn, nil
}

// Listener returns the socket factory hosts should use: the injected one
// from deps if present, ListenPacket otherwise.
func Listener(deps *config.Dependencies) config.PacketListenerFunc {
	if deps != nil && deps.PacketListener != nil {
		return deps.PacketListener
	}
	return ListenPacket
}

func control(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if sockErr = setSockoptReuseAddr(fd); sockErr != nil {
			return
		}
		sockErr = setSockoptBroadcast(fd)
	})
	if err != nil {
		return err
	}
	return sockErr
}
