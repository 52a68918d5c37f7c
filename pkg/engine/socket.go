package engine

import (
	"errors"
	"net"
	"sync"
	"syscall"
	"time"
)

// tagEngine starts every datagram the engine writes. Datagrams without it
// are out-of-band.
const tagEngine byte = 0xe7

const (
	datagramQueue   = 256
	maxDatagramSize = 64 << 10
)

type datagram struct {
	data []byte
	addr net.Addr
}

// demux owns a host's socket. It reads every datagram once and hands engine
// traffic to the virtual connection registered for the sender, or to the
// fallback connection served by the host's KCP listener.
type demux struct {
	conn net.PacketConn

	mu       sync.Mutex
	routes   map[string]*virtualConn
	fallback *virtualConn
	closed   bool

	oob     func(from net.Addr, payload []byte)
	onError func(error)
}

func newDemux(conn net.PacketConn, oob func(net.Addr, []byte), onError func(error)) *demux {
	d := &demux{
		conn:    conn,
		routes:  make(map[string]*virtualConn),
		oob:     oob,
		onError: onError,
	}
	d.fallback = newVirtualConn(d, "")
	return d
}

func routeKey(addr net.Addr) string {
	return AddressFromNet(addr).String()
}

// open registers a virtual connection receiving traffic from remote. It fails
// if one is already registered for that address.
func (d *demux) open(remote net.Addr) (*virtualConn, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := routeKey(remote)
	if d.closed {
		return nil, false
	}
	if _, ok := d.routes[key]; ok {
		return nil, false
	}
	v := newVirtualConn(d, key)
	d.routes[key] = v
	return v, true
}

func (d *demux) remove(v *virtualConn) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cur, ok := d.routes[v.key]; ok && cur == v {
		delete(d.routes, v.key)
	}
}

// run reads from the socket until it fails or is closed.
func (d *demux) run() {
	buf := make([]byte, maxDatagramSize+1)
	for {
		n, addr, err := d.conn.ReadFrom(buf)
		if err != nil {
			// ICMP port unreachable surfaces as a reset on some platforms
			if errors.Is(err, syscall.ECONNRESET) {
				continue
			}
			d.mu.Lock()
			closed := d.closed
			d.mu.Unlock()
			if !closed && d.onError != nil {
				d.onError(err)
			}
			return
		}
		if n == 0 {
			continue
		}

		if buf[0] != tagEngine {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			if d.oob != nil {
				d.oob(addr, payload)
			}
			continue
		}

		data := make([]byte, n-1)
		copy(data, buf[1:n])

		d.mu.Lock()
		v, ok := d.routes[routeKey(addr)]
		if !ok {
			v = d.fallback
		}
		d.mu.Unlock()

		v.deliver(datagram{data: data, addr: addr})
	}
}

// close shuts every virtual connection and the socket itself.
func (d *demux) close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	routes := d.routes
	d.routes = make(map[string]*virtualConn)
	d.mu.Unlock()

	for _, v := range routes {
		v.Close()
	}
	d.fallback.Close()
	return d.conn.Close()
}

// virtualConn is the net.PacketConn a single KCP session or listener sees.
// Reads come from the demux, writes go straight to the socket with the
// engine tag prepended.
type virtualConn struct {
	d       *demux
	key     string
	packets chan datagram
	closeCh chan struct{}
	once    sync.Once
}

func newVirtualConn(d *demux, key string) *virtualConn {
	return &virtualConn{
		d:       d,
		key:     key,
		packets: make(chan datagram, datagramQueue),
		closeCh: make(chan struct{}),
	}
}

// deliver queues a datagram, dropping it when the queue is full.
func (v *virtualConn) deliver(dg datagram) {
	select {
	case <-v.closeCh:
	case v.packets <- dg:
	default:
	}
}

// ReadFrom reads a packet from the connection.
func (v *virtualConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case dg := <-v.packets:
		n := copy(p, dg.data)
		return n, dg.addr, nil
	case <-v.closeCh:
		return 0, nil, net.ErrClosed
	}
}

// WriteTo writes a packet to the specified address.
func (v *virtualConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	select {
	case <-v.closeCh:
		return 0, net.ErrClosed
	default:
	}

	buf := make([]byte, len(p)+1)
	buf[0] = tagEngine
	copy(buf[1:], p)
	if _, err := v.d.conn.WriteTo(buf, addr); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close unregisters the connection. The socket stays open.
func (v *virtualConn) Close() error {
	v.once.Do(func() {
		close(v.closeCh)
		if v.key != "" {
			v.d.remove(v)
		}
	})
	return nil
}

// LocalAddr returns the socket's local address.
func (v *virtualConn) LocalAddr() net.Addr {
	return v.d.conn.LocalAddr()
}

func (v *virtualConn) SetDeadline(t time.Time) error      { return nil }
func (v *virtualConn) SetReadDeadline(t time.Time) error  { return nil }
func (v *virtualConn) SetWriteDeadline(t time.Time) error { return nil }

var _ net.PacketConn = (*virtualConn)(nil)
