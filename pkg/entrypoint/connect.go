package entrypoint

import (
	"context"
	"dominicbreuker/goenet/pkg/config"
	"dominicbreuker/goenet/pkg/handler"
	"fmt"
	"sync"
)

// uses interfaces/factories from internal.go (DI for testing)

// Connect connects to a listening host and pipes stdio through the peer
// until either side is done or ctx is cancelled.
func Connect(ctx context.Context, cfg *config.Session) error {
	return connect(ctx, cfg, realClientFactory(), realHandlerFactory())
}

func connect(
	parent context.Context,
	cfg *config.Session,
	newClient clientFactory,
	newHandler handlerFactory,
) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	c := newClient(ctx, cfg)
	if err := c.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	var closeOnce sync.Once
	closeClient := func() { closeOnce.Do(func() { _ = c.Close() }) }
	defer closeClient()

	h, err := newHandler(ctx, cfg, c.GetPeer(), c.GetStream(), handler.SideConnect)
	if err != nil {
		return fmt.Errorf("creating handler: %w", err)
	}
	defer h.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- h.Handle() }()

	select {
	case <-ctx.Done():
		cfg.Logger.VerboseMsg("Connect: context cancelled, destroying host")
		closeClient()
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
