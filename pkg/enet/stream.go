package enet

import (
	"fmt"
	"io"
	"sync"
)

// Stream presents one channel of a peer as a byte stream. Writes become
// reliable packets; reads return the channel's payloads in arrival order.
// A failed send makes every later write fail with ErrQueuingError.
type Stream struct {
	peer    *Peer
	channel uint8

	mu        sync.Mutex
	cond      *sync.Cond
	connected bool
	failed    bool
	closed    bool
	eof       bool
	queue     [][]byte
	detach    []func()
}

// CreateWriteStream returns a writer sending on channel, nil for an inert
// peer.
func (p *Peer) CreateWriteStream(channel uint8) io.WriteCloser {
	s := p.newStream(channel, false)
	if s == nil {
		return nil
	}
	return s
}

// CreateReadStream returns a reader over channel, nil for an inert peer.
func (p *Peer) CreateReadStream(channel uint8) io.ReadCloser {
	s := p.newStream(channel, true)
	if s == nil {
		return nil
	}
	return s
}

// CreateDuplexStream returns a reader and writer over channel, nil for an
// inert peer.
func (p *Peer) CreateDuplexStream(channel uint8) io.ReadWriteCloser {
	s := p.newStream(channel, true)
	if s == nil {
		return nil
	}
	return s
}

func (p *Peer) newStream(channel uint8, readable bool) *Stream {
	if p.live() == 0 {
		return nil
	}

	s := &Stream{peer: p, channel: channel}
	s.cond = sync.NewCond(&s.mu)
	s.connected = p.State() == StateConnected

	s.detach = append(s.detach,
		p.OnConnect(s.handleConnect),
		p.OnDisconnect(s.handleDisconnect),
		p.onReset.add(func() { s.handleDisconnect(0) }),
	)
	if readable {
		s.detach = append(s.detach, p.OnMessage(s.handleMessage))
	}
	return s
}

func (s *Stream) handleConnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.cond.Broadcast()
}

func (s *Stream) handleDisconnect(uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.eof = true
	s.cond.Broadcast()
}

func (s *Stream) handleMessage(pkt *Packet, channel uint8) {
	if channel != s.channel {
		return
	}
	data := append([]byte(nil), pkt.Data()...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, data)
	s.cond.Broadcast()
}

// Write sends b as one or more reliable packets.
func (s *Stream) Write(b []byte) (int, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return 0, io.ErrClosedPipe
	case s.failed:
		s.mu.Unlock()
		return 0, ErrQueuingError
	case !s.connected:
		s.mu.Unlock()
		return 0, ErrPeerNotConnected
	}
	s.mu.Unlock()

	n := 0
	for n < len(b) {
		end := n + MaxPacketSize
		if end > len(b) {
			end = len(b)
		}
		if err := s.peer.SendBytes(s.channel, b[n:end], s.sent); err != nil {
			s.fail()
			return n, fmt.Errorf("%w: %w", ErrQueuingError, err)
		}
		n = end
	}
	return n, nil
}

// sent is the completion of every packet the stream sends.
func (s *Stream) sent(err error) {
	if err != nil {
		s.fail()
	}
}

func (s *Stream) fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = true
}

// Read returns buffered payload bytes, waiting for more while the peer is
// connected or still connecting. It returns io.EOF once the peer
// disconnected and the buffer is drained.
func (s *Stream) Read(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if len(s.queue) > 0 {
			n := copy(b, s.queue[0])
			if n == len(s.queue[0]) {
				s.queue[0] = nil
				s.queue = s.queue[1:]
			} else {
				s.queue[0] = s.queue[0][n:]
			}
			return n, nil
		}
		if s.closed {
			return 0, io.ErrClosedPipe
		}
		if s.eof || (!s.connected && s.gone()) {
			return 0, io.EOF
		}
		s.cond.Wait()
	}
}

// gone reports whether the peer will never connect or deliver again.
func (s *Stream) gone() bool {
	switch s.peer.State() {
	case StateDisconnected, StateZombie:
		return true
	}
	return false
}

// Close detaches the stream from the peer. The peer stays connected.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue = nil
	detach := s.detach
	s.detach = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, fn := range detach {
		fn()
	}
	return nil
}
