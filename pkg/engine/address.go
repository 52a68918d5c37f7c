package engine

import (
	"dominicbreuker/goenet/pkg/format"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Address is an IPv4 endpoint. The host is the four octets packed little-endian,
// so 10.0.0.1 is 0x0100000a.
type Address struct {
	host uint32
	port uint16
}

// NewAddress builds an Address from a numeric host and a port.
func NewAddress(host uint32, port uint16) Address {
	return Address{host: host, port: port}
}

// ParseAddress parses "a.b.c.d:port" or a bare "a.b.c.d" (port 0).
func ParseAddress(s string) (Address, error) {
	ip, portStr, found := strings.Cut(s, ":")
	var port uint64
	if found && portStr != "" {
		var err error
		port, err = strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return Address{}, fmt.Errorf("parsing port of %q: %w", s, err)
		}
	}
	if ip == "" {
		ip = "0.0.0.0"
	}

	host, err := IP2Long(ip)
	if err != nil {
		return Address{}, err
	}
	return Address{host: host, port: uint16(port)}, nil
}

// AddressFromIP builds an Address from a dotted quad and a port.
func AddressFromIP(ip string, port uint16) (Address, error) {
	host, err := IP2Long(ip)
	if err != nil {
		return Address{}, err
	}
	return Address{host: host, port: port}, nil
}

// AddressFromNet converts a UDP (or any ip:port) net.Addr. Non-IPv4 hosts map
// to 0.0.0.0.
func AddressFromNet(addr net.Addr) Address {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return Address{host: packIPv4(a.IP), port: uint16(a.Port)}
	case *net.TCPAddr:
		return Address{host: packIPv4(a.IP), port: uint16(a.Port)}
	case nil:
		return Address{}
	}

	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return Address{}
	}
	p, _ := strconv.ParseUint(port, 10, 16)
	return Address{host: packIPv4(net.ParseIP(host)), port: uint16(p)}
}

// Host returns the packed numeric host.
func (a Address) Host() uint32 { return a.host }

// Port returns the port.
func (a Address) Port() uint16 { return a.port }

// IP returns the host as a dotted quad.
func (a Address) IP() string { return Long2IP(a.host) }

func (a Address) String() string {
	return format.Addr(a.IP(), int(a.port))
}

// UDPAddr converts the address for use with a net.PacketConn.
func (a Address) UDPAddr() *net.UDPAddr {
	h := a.host
	return &net.UDPAddr{
		IP:   net.IPv4(byte(h), byte(h>>8), byte(h>>16), byte(h>>24)),
		Port: int(a.port),
	}
}

// IP2Long packs a dotted quad into a little-endian uint32.
func IP2Long(ip string) (uint32, error) {
	parsed := net.ParseIP(ip).To4()
	if parsed == nil {
		return 0, fmt.Errorf("not an IPv4 address: %q", ip)
	}
	return packIPv4(parsed), nil
}

// Long2IP renders a little-endian packed host as a dotted quad.
func Long2IP(host uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", host&0xff, (host>>8)&0xff, (host>>16)&0xff, (host>>24)&0xff)
}

func packIPv4(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return uint32(v4[0]) | uint32(v4[1])<<8 | uint32(v4[2])<<16 | uint32(v4[3])<<24
}
