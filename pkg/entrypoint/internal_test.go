package entrypoint

import (
	"context"
	"dominicbreuker/goenet/pkg/config"
	"dominicbreuker/goenet/pkg/enet"
	"dominicbreuker/goenet/pkg/handler"
	"dominicbreuker/goenet/pkg/server"
	"io"
	"sync"
)

// testConfig creates a standard test configuration.
func testConfig() *config.Session {
	return &config.Session{
		Transport: config.Transport{
			Protocol: config.ProtoUDP,
			Host:     "127.0.0.1",
			Port:     9000,
		},
	}
}

// fakeServer hands peers to its handler when serve is called and blocks
// in Serve until closed.
type fakeServer struct {
	handle   server.Handler
	serveErr error

	closed  bool
	closeCh chan struct{}
	mu      sync.Mutex
}

func newFakeServer(serveErr error) *fakeServer {
	return &fakeServer{serveErr: serveErr, closeCh: make(chan struct{})}
}

func (f *fakeServer) Serve() error {
	if f.serveErr != nil {
		return f.serveErr
	}
	<-f.closeCh
	return nil
}

func (f *fakeServer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closeCh)
	}
	return nil
}

func (f *fakeServer) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeClient implements clientInterface.
type fakeClient struct {
	connectErr error
	stream     io.ReadWriteCloser

	closed bool
	mu     sync.Mutex
}

func (f *fakeClient) Connect() error {
	return f.connectErr
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeClient) GetPeer() *enet.Peer {
	return nil
}

func (f *fakeClient) GetStream() io.ReadWriteCloser {
	return f.stream
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeHandler implements handlerInterface. Handle returns handleErr, after
// block is closed if set.
type fakeHandler struct {
	handleErr error
	block     chan struct{}

	closed  bool
	closeCh chan struct{}
	mu      sync.Mutex
}

func newFakeHandler(handleErr error, block chan struct{}) *fakeHandler {
	return &fakeHandler{handleErr: handleErr, block: block, closeCh: make(chan struct{})}
}

func (f *fakeHandler) Handle() error {
	if f.block != nil {
		<-f.block
	}
	return f.handleErr
}

func (f *fakeHandler) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closeCh)
	}
	return nil
}

func (f *fakeHandler) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// handlerFactoryFor returns a factory that records the side it was asked for
// and returns h or err.
func handlerFactoryFor(h *fakeHandler, err error, side *handler.Side) handlerFactory {
	return func(_ context.Context, _ *config.Session, _ *enet.Peer, _ io.ReadWriteCloser, s handler.Side) (handlerInterface, error) {
		if side != nil {
			*side = s
		}
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}
