// Package mocks provides mock implementations for testing.
package mocks

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// MockUDPNetwork simulates a UDP network for testing without real network connections.
// Sockets communicate through in-memory queues. Like real UDP, datagrams to
// unknown addresses or full queues are dropped silently.
type MockUDPNetwork struct {
	listeners    map[string]*mockUDPListener
	mu           sync.Mutex
	listenerCond *sync.Cond // Condition variable to signal listener changes
	nextPort     int

	// drop decides per datagram whether it is lost in transit
	drop func(data []byte, src, dst *net.UDPAddr) bool
}

// NewMockUDPNetwork creates a new mock UDP network.
func NewMockUDPNetwork() *MockUDPNetwork {
	m := &MockUDPNetwork{
		listeners: make(map[string]*mockUDPListener),
		nextPort:  40000,
	}
	m.listenerCond = sync.NewCond(&m.mu)
	return m
}

// SetDrop installs a loss function. A nil function delivers everything.
func (m *MockUDPNetwork) SetDrop(fn func(data []byte, src, dst *net.UDPAddr) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drop = fn
}

// ListenUDP creates a mock UDP socket on the specified address. Port 0 picks
// a free port.
func (m *MockUDPNetwork) ListenUDP(network string, laddr *net.UDPAddr) (net.PacketConn, error) {
	if network != "udp" && network != "udp4" {
		return nil, fmt.Errorf("unsupported network type: %s", network)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	addr := &net.UDPAddr{IP: laddr.IP, Port: laddr.Port}
	if addr.IP == nil || addr.IP.IsUnspecified() {
		addr.IP = net.IPv4(127, 0, 0, 1)
	}
	if addr.Port == 0 {
		for {
			m.nextPort++
			addr.Port = m.nextPort
			if _, exists := m.listeners[addr.String()]; !exists {
				break
			}
		}
	}

	key := addr.String()
	if _, exists := m.listeners[key]; exists {
		return nil, fmt.Errorf("address already in use: %s", key)
	}

	listener := &mockUDPListener{
		addr:    addr,
		packets: make(chan *mockUDPPacket, 1024),
		closeCh: make(chan struct{}),
		network: m,
	}
	m.listeners[key] = listener
	m.listenerCond.Broadcast() // Signal that a new listener is available

	return listener, nil
}

// ListenPacket creates a mock UDP socket on the specified address.
// This is an alias for ListenUDP to match the net.ListenPacket signature.
func (m *MockUDPNetwork) ListenPacket(network, address string) (net.PacketConn, error) {
	laddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}

	return m.ListenUDP(network, laddr)
}

// WriteTo injects a datagram from srcAddr, which need not be a socket of the
// network, to dstAddr.
func (m *MockUDPNetwork) WriteTo(data []byte, srcAddr *net.UDPAddr, dstAddr *net.UDPAddr) (int, error) {
	m.mu.Lock()
	_, exists := m.listeners[dstAddr.String()]
	m.mu.Unlock()

	if !exists {
		return 0, fmt.Errorf("no listener on %s", dstAddr.String())
	}
	return m.deliver(data, srcAddr, dstAddr), nil
}

func (m *MockUDPNetwork) deliver(data []byte, src, dst *net.UDPAddr) int {
	m.mu.Lock()
	listener, exists := m.listeners[dst.String()]
	drop := m.drop
	m.mu.Unlock()

	if !exists || (drop != nil && drop(data, src, dst)) {
		return len(data)
	}

	packet := &mockUDPPacket{
		data: make([]byte, len(data)),
		addr: src,
	}
	copy(packet.data, data)

	select {
	case listener.packets <- packet:
	case <-listener.closeCh:
	default:
	}
	return len(data)
}

// WaitForListener waits for a listener to be created on the specified address within the given timeout.
// It returns nil if the listener is found, or an error if the timeout expires.
// The timeout is specified in milliseconds.
func (m *MockUDPNetwork) WaitForListener(addr string, timeoutMs int) error {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		if _, exists := m.listeners[addr]; exists {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for UDP listener on %s", addr)
		}

		// wake up periodically to check the deadline
		go func() {
			time.Sleep(50 * time.Millisecond)
			m.listenerCond.Broadcast()
		}()
		m.listenerCond.Wait()
	}
}

// mockUDPPacket represents a UDP packet in the mock network.
type mockUDPPacket struct {
	data []byte
	addr *net.UDPAddr
}

// mockUDPListener is a mock implementation of net.PacketConn for UDP.
type mockUDPListener struct {
	addr    *net.UDPAddr
	packets chan *mockUDPPacket
	closeCh chan struct{}
	closed  bool
	mu      sync.Mutex
	network *MockUDPNetwork
}

// ReadFrom reads a packet from the connection.
func (l *mockUDPListener) ReadFrom(p []byte) (n int, addr net.Addr, err error) {
	select {
	case packet := <-l.packets:
		n = copy(p, packet.data)
		return n, packet.addr, nil
	case <-l.closeCh:
		return 0, nil, net.ErrClosed
	}
}

// WriteTo writes a packet to the specified address.
func (l *mockUDPListener) WriteTo(p []byte, addr net.Addr) (n int, err error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, net.ErrClosed
	}
	l.mu.Unlock()

	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return 0, fmt.Errorf("address must be *net.UDPAddr")
	}

	return l.network.deliver(p, l.addr, udpAddr), nil
}

// Close closes the connection.
func (l *mockUDPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	close(l.closeCh)

	l.network.mu.Lock()
	delete(l.network.listeners, l.addr.String())
	l.network.mu.Unlock()

	return nil
}

// LocalAddr returns the local network address.
func (l *mockUDPListener) LocalAddr() net.Addr {
	return l.addr
}

// SetDeadline sets the read and write deadlines.
func (l *mockUDPListener) SetDeadline(t time.Time) error {
	return nil
}

// SetReadDeadline sets the read deadline.
func (l *mockUDPListener) SetReadDeadline(t time.Time) error {
	return nil
}

// SetWriteDeadline sets the write deadline.
func (l *mockUDPListener) SetWriteDeadline(t time.Time) error {
	return nil
}

var _ net.PacketConn = (*mockUDPListener)(nil)
