// Package server runs a listening goenet host and hands every peer that
// connects to it to a handler.
package server

import (
	"context"
	"dominicbreuker/goenet/pkg/config"
	"dominicbreuker/goenet/pkg/crypto"
	"dominicbreuker/goenet/pkg/enet"
	"dominicbreuker/goenet/pkg/format"
	"dominicbreuker/goenet/pkg/log"
	"dominicbreuker/goenet/pkg/semaphore"
	"dominicbreuker/goenet/pkg/transport/udp"
	"dominicbreuker/goenet/pkg/transport/ws"
	"fmt"
	"io"
	"sync"
)

// Handler handles one connected peer through stream, a duplex stream on the
// configured channel. The peer is disconnected once it returns.
type Handler func(p *enet.Peer, stream io.ReadWriteCloser) error

// Server accepts peers on a listening host and runs the handler for each.
type Server struct {
	ctx    context.Context
	cfg    *config.Session
	handle Handler

	host *enet.Host
	sem  *semaphore.PeerSlots
	wg   sync.WaitGroup

	mu   sync.Mutex
	err  error
	done chan struct{}
	once sync.Once
}

// New creates the listening host. Peers are handled as soon as they connect;
// Serve only waits for the host to end.
func New(ctx context.Context, cfg *config.Session, handle Handler) (*Server, error) {
	s := &Server{
		ctx:    ctx,
		cfg:    cfg,
		handle: handle,
		done:   make(chan struct{}),
	}
	if cfg.Peers > 0 {
		s.sem = semaphore.New(cfg.Peers, cfg.GetTimeout())
	}

	hostCfg, err := s.prepare()
	if err != nil {
		return nil, err
	}

	create := enet.CreateServer
	if hostCfg.CustomSocket != nil {
		create = enet.CreateServerFromSocket
	}

	// servers report creation before returning, a socket failure while
	// starting may report once more
	createdCh := make(chan error, 2)
	h := create(hostCfg, func(_ *enet.Host, err error) { createdCh <- err })
	if created := <-createdCh; created != nil {
		if h == nil && hostCfg.CustomSocket != nil {
			hostCfg.CustomSocket.Close()
		}
		return nil, fmt.Errorf("creating host on %s: %w", s.cfg.Addr(), created)
	}
	s.host = h

	h.OnConnect(func(p *enet.Peer, _ uint32, local bool) {
		if local {
			return
		}
		// attach the stream before the peer's first message is dispatched
		stream := p.CreateDuplexStream(uint8(s.cfg.Channel))
		s.wg.Add(1)
		go s.serve(p, stream)
	})
	h.OnError(func(err error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.err == nil {
			s.err = err
		}
	})
	h.OnDestroy(func() { s.once.Do(func() { close(s.done) }) })

	log.InfoMsg("Listening on %s\n", h.Address())
	if hostCfg.Key != "" {
		s.cfg.Logger.VerboseMsg("Sessions encrypted with key %s", crypto.Fingerprint(crypto.DeriveKey(hostCfg.Key)))
	}
	return s, nil
}

// prepare opens the socket the host adopts for WebSocket transports or when
// datagrams are logged. Otherwise the host binds its address itself.
func (s *Server) prepare() (*config.Host, error) {
	hostCfg := s.cfg.HostConfig()
	hostCfg.Address = s.cfg.Addr()

	switch {
	case s.cfg.Protocol == config.ProtoWS:
		pc, err := ws.Listen(s.ctx, hostCfg.Address, s.cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("ws.Listen(%s): %w", hostCfg.Address, err)
		}
		hostCfg.CustomSocket = pc
	case s.cfg.LogFile != "":
		pc, err := udp.Listener(s.cfg.Deps)("udp4", hostCfg.Address)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", hostCfg.Address, err)
		}
		hostCfg.CustomSocket = pc
	}

	if s.cfg.LogFile != "" {
		logged, err := log.NewLoggedPacketConn(hostCfg.CustomSocket, s.cfg.LogFile)
		if err != nil {
			hostCfg.CustomSocket.Close()
			return nil, fmt.Errorf("enabling logging to %s: %w", s.cfg.LogFile, err)
		}
		hostCfg.CustomSocket = logged
	}

	return hostCfg, nil
}

// Serve blocks until the context is done or the host goes offline. It
// returns the socket error that took the host down, if any.
func (s *Server) Serve() error {
	select {
	case <-s.ctx.Done():
		return nil
	case <-s.done:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return fmt.Errorf("host on %s: %w", s.cfg.Addr(), s.err)
	}
	return nil
}

// Close destroys the host and waits for running handlers.
func (s *Server) Close() error {
	s.host.Destroy()
	s.wg.Wait()
	return nil
}

func (s *Server) serve(p *enet.Peer, stream io.ReadWriteCloser) {
	defer s.wg.Done()

	addr := p.Address()
	if err := s.sem.Acquire(s.ctx); err != nil {
		log.ErrorMsg("Rejecting %s: %s\n", addr, err)
		if stream != nil {
			stream.Close()
		}
		p.DisconnectNow(0)
		return
	}
	defer s.sem.Release()

	log.InfoMsg("New peer %s\n", addr)
	if s.sem != nil {
		s.cfg.Logger.VerboseMsg("%d of %d peer slots in use", s.sem.InUse(), s.sem.Size())
	}

	if err := s.handle(p, stream); err != nil {
		log.ErrorMsg("Handling %s: %s\n", addr, err)
	}
	in, out := p.IncomingDataTotal(), p.OutgoingDataTotal()
	p.DisconnectLater(0)
	log.InfoMsg("Peer %s gone (%s in, %s out)\n", addr, format.Bytes(uint64(in)), format.Bytes(uint64(out)))
}
