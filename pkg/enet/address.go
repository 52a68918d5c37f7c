package enet

import (
	"dominicbreuker/goenet/pkg/engine"
	"net"
)

// Address is an IPv4 host and port.
type Address = engine.Address

// NewAddress builds an Address from a little-endian packed host and a port.
func NewAddress(host uint32, port uint16) Address {
	return engine.NewAddress(host, port)
}

// ParseAddress parses "a.b.c.d:port".
func ParseAddress(s string) (Address, error) {
	return engine.ParseAddress(s)
}

// AddressFromIP builds an Address from a dotted quad and a port.
func AddressFromIP(ip string, port uint16) (Address, error) {
	return engine.AddressFromIP(ip, port)
}

// AddressFromNet converts a net.Addr such as a socket's remote address.
func AddressFromNet(addr net.Addr) Address {
	return engine.AddressFromNet(addr)
}

// IP2Long packs a dotted quad the way Address stores it.
func IP2Long(ip string) (uint32, error) {
	return engine.IP2Long(ip)
}

// Long2IP renders a packed host as a dotted quad.
func Long2IP(host uint32) string {
	return engine.Long2IP(host)
}
