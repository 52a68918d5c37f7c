package entrypoint

import (
	"context"
	"dominicbreuker/goenet/pkg/client"
	"dominicbreuker/goenet/pkg/config"
	"dominicbreuker/goenet/pkg/enet"
	"dominicbreuker/goenet/pkg/handler"
	"dominicbreuker/goenet/pkg/server"
	"errors"
	"io"
	"net"
)

// serverInterface defines the interface for a server that can serve and be closed.
type serverInterface interface {
	Serve() error
	Close() error
}

// serverFactory is a function type for creating servers.
type serverFactory func(ctx context.Context, cfg *config.Session, handle server.Handler) (serverInterface, error)

// realServerFactory returns the actual server factory used in production.
func realServerFactory() serverFactory {
	return func(ctx context.Context, cfg *config.Session, handle server.Handler) (serverInterface, error) {
		return server.New(ctx, cfg, handle)
	}
}

// clientInterface defines the interface for a client that connects a peer.
type clientInterface interface {
	Connect() error
	Close() error
	GetPeer() *enet.Peer
	GetStream() io.ReadWriteCloser
}

// clientFactory is a function type for creating clients.
type clientFactory func(context.Context, *config.Session) clientInterface

// realClientFactory returns the actual client factory used in production.
func realClientFactory() clientFactory {
	return func(ctx context.Context, cfg *config.Session) clientInterface {
		return client.New(ctx, cfg)
	}
}

// handlerInterface defines the interface for a handler that can handle a peer.
type handlerInterface interface {
	Handle() error
	Close() error
}

// handlerFactory is a function type for creating peer handlers.
type handlerFactory func(context.Context, *config.Session, *enet.Peer, io.ReadWriteCloser, handler.Side) (handlerInterface, error)

// realHandlerFactory returns the actual handler factory used in production.
func realHandlerFactory() handlerFactory {
	return func(ctx context.Context, cfg *config.Session, p *enet.Peer, stream io.ReadWriteCloser, side handler.Side) (handlerInterface, error) {
		return handler.New(ctx, cfg, p, stream, side)
	}
}

// benign recognizes errors caused by our own shutdown.
func benign(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
