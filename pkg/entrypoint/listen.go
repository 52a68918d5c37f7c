// Package entrypoint provides the entry functions of the two operation modes
// of goenet, listen and connect. They start the host and the handlers,
// separated from CLI argument parsing.
package entrypoint

import (
	"context"
	"dominicbreuker/goenet/pkg/config"
	"dominicbreuker/goenet/pkg/enet"
	"dominicbreuker/goenet/pkg/handler"
	"dominicbreuker/goenet/pkg/server"
	"fmt"
	"io"
	"sync"
)

// uses interfaces/factories from internal.go (DI for testing)

// Listen runs a listening host and pipes stdio through every peer that
// connects, until ctx is done or the host goes offline.
func Listen(ctx context.Context, cfg *config.Session) error {
	return listen(ctx, cfg, realServerFactory(), realHandlerFactory())
}

func listen(
	parent context.Context,
	cfg *config.Session,
	newServer serverFactory,
	newHandler handlerFactory,
) error {
	// child ctx we will cancel on return
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	s, err := newServer(ctx, cfg, makeHandler(ctx, cfg, newHandler))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	var closeOnce sync.Once
	closeServer := func() { closeOnce.Do(func() { _ = s.Close() }) }
	defer closeServer()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	select {
	case <-ctx.Done():
		cfg.Logger.VerboseMsg("Listen: context cancelled, destroying host")
		closeServer()
		err := <-errCh
		if benign(err) {
			return nil
		}
		return fmt.Errorf("serving after cancel: %w", err)

	case err := <-errCh:
		if benign(err) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	}
}

func makeHandler(
	parent context.Context,
	cfg *config.Session,
	newHandler handlerFactory,
) server.Handler {
	return func(p *enet.Peer, stream io.ReadWriteCloser) error {
		ctx, cancel := context.WithCancel(parent)
		defer cancel()

		h, err := newHandler(ctx, cfg, p, stream, handler.SideListen)
		if err != nil {
			return fmt.Errorf("creating handler: %w", err)
		}
		var closeOnce sync.Once
		closeHandler := func() { closeOnce.Do(func() { _ = h.Close() }) }
		defer closeHandler()

		errCh := make(chan error, 1)
		go func() { errCh <- h.Handle() }()

		select {
		case <-ctx.Done():
			closeHandler()
			err := <-errCh
			if benign(err) {
				return nil
			}
			return fmt.Errorf("handling after cancel: %w", err)

		case err := <-errCh:
			if benign(err) {
				return nil
			}
			return fmt.Errorf("handling: %w", err)
		}
	}
}
