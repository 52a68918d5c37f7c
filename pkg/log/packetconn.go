package log

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"sync"
	"time"
)

// loggedPacketConn wraps a net.PacketConn and writes a hex dump of every
// datagram read or written to a file.
type loggedPacketConn struct {
	net.PacketConn
	logFile *os.File
	mu      sync.Mutex
}

func (lc *loggedPacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	n, addr, err := lc.PacketConn.ReadFrom(b)
	if n > 0 {
		if lerr := lc.record("<", addr, b[:n]); lerr != nil {
			return 0, addr, fmt.Errorf("reading: %s", lerr)
		}
	}
	return n, addr, err
}

func (lc *loggedPacketConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	n, err := lc.PacketConn.WriteTo(b, addr)
	if n > 0 {
		if lerr := lc.record(">", addr, b[:n]); lerr != nil {
			return 0, fmt.Errorf("writing: %s", lerr)
		}
	}
	return n, err
}

func (lc *loggedPacketConn) Close() error {
	err := lc.PacketConn.Close()
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.logFile.Close()
	return err
}

func (lc *loggedPacketConn) record(dir string, addr net.Addr, b []byte) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	peer := "?"
	if addr != nil {
		peer = addr.String()
	}
	_, err := fmt.Fprintf(lc.logFile, "%s %s %s %d %s\n",
		time.Now().UTC().Format(time.RFC3339Nano), dir, peer, len(b), hex.EncodeToString(b))
	return err
}

// NewLoggedPacketConn wraps a packet connection to log all datagrams read from
// and written to it. The log file is created or appended to at the specified path.
func NewLoggedPacketConn(conn net.PacketConn, logFilePath string) (net.PacketConn, error) {
	logFile, err := os.OpenFile(logFilePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	return &loggedPacketConn{PacketConn: conn, logFile: logFile}, nil
}
