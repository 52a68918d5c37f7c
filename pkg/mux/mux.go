// Package mux runs yamux sessions over a byte stream, typically a duplex
// channel stream between two goenet peers. Every session has one control
// stream carrying gob encoded messages; further streams carry data.
package mux

import (
	"context"
	"dominicbreuker/goenet/pkg/mux/msg"
	"encoding/gob"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/yamux"
)

// Session is one end of a multiplexed connection.
type Session struct {
	mux *yamux.Session
	ctl net.Conn

	enc *gob.Encoder
	dec *gob.Decoder

	timeout time.Duration

	mu sync.Mutex
}

// Open starts the client side over conn and opens the control stream.
// timeout bounds control operations; zero selects ControlOpDeadline.
func Open(ctx context.Context, conn io.ReadWriteCloser, timeout time.Duration) (*Session, error) {
	s := &Session{timeout: orDefault(timeout)}

	var err error
	s.mux, err = yamux.Client(conn, config())
	if err != nil {
		return nil, fmt.Errorf("yamux.Client(conn): %w", err)
	}

	s.ctl, err = s.OpenStream(ctx)
	if err != nil {
		s.mux.Close()
		return nil, fmt.Errorf("OpenStream() for ctl: %w", err)
	}
	s.enc = gob.NewEncoder(s.ctl)
	s.dec = gob.NewDecoder(s.ctl)

	return s, nil
}

// Accept starts the server side over conn and accepts the control stream.
func Accept(ctx context.Context, conn io.ReadWriteCloser, timeout time.Duration) (*Session, error) {
	s := &Session{timeout: orDefault(timeout)}

	var err error
	s.mux, err = yamux.Server(conn, config())
	if err != nil {
		return nil, fmt.Errorf("yamux.Server(conn): %w", err)
	}

	s.ctl, err = s.AcceptStream(ctx)
	if err != nil {
		s.mux.Close()
		return nil, fmt.Errorf("AcceptStream() for ctl: %w", err)
	}
	s.enc = gob.NewEncoder(s.ctl)
	s.dec = gob.NewDecoder(s.ctl)

	return s, nil
}

func orDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return ControlOpDeadline
	}
	return timeout
}

// Close closes the control stream and the yamux session.
func (s *Session) Close() error {
	if s.ctl != nil {
		s.ctl.Close() // best effort
	}
	return s.mux.Close()
}

// CloseChan is closed when the session shuts down.
func (s *Session) CloseChan() <-chan struct{} {
	return s.mux.CloseChan()
}

// OpenStream opens a data stream, giving up when ctx is done or the session
// timeout passes.
func (s *Session) OpenStream(ctx context.Context) (net.Conn, error) {
	if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	type result struct {
		c   net.Conn
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		out, err := s.mux.Open()
		// buffered, so this goroutine never blocks if the caller returned early
		resCh <- result{out, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resCh:
		if r.err != nil {
			return nil, fmt.Errorf("session.Open(): %w", r.err)
		}
		return r.c, nil
	}
}

// AcceptStream waits for the other side to open a data stream. It does not
// time out unless ctx does.
func (s *Session) AcceptStream(ctx context.Context) (net.Conn, error) {
	stream, err := s.mux.AcceptStreamWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("AcceptStreamWithContext(): %w", err)
	}
	if stream == nil {
		return nil, fmt.Errorf("AcceptStreamWithContext returned nil stream")
	}
	return stream, nil
}

// Send encodes m on the control stream.
func (s *Session) Send(ctx context.Context, m msg.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	_ = s.ctl.SetWriteDeadline(s.deadline(ctx))
	defer s.ctl.SetWriteDeadline(time.Time{})

	if err := s.enc.Encode(&m); err != nil {
		return fmt.Errorf("sending msg: %w", err)
	}
	return nil
}

// Receive decodes the next control message. It waits without a timeout
// until ctx is done, since the other side sends only when it has something
// to say.
func (s *Session) Receive(ctx context.Context) (msg.Message, error) {
	if d, ok := ctx.Deadline(); ok {
		_ = s.ctl.SetReadDeadline(d)
		defer s.ctl.SetReadDeadline(time.Time{})
	} else {
		// interrupt the blocking decode when ctx is cancelled
		defer s.ctl.SetReadDeadline(time.Time{})
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = s.ctl.SetReadDeadline(time.Now())
			case <-done:
			}
		}()
		defer close(done)
	}

	var m msg.Message
	if err := s.dec.Decode(&m); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("receiving msg: %w", err)
	}
	return m, nil
}

// deadline is the earlier of ctx's deadline and now plus the session timeout.
func (s *Session) deadline(ctx context.Context) time.Time {
	dl := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(dl) {
		dl = d
	}
	return dl
}

func config() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = nil
	cfg.Logger = log.New(io.Discard, "", log.LstdFlags) // discard all console logging in yamux
	return cfg
}
