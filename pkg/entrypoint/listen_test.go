package entrypoint

import (
	"context"
	"dominicbreuker/goenet/pkg/config"
	"dominicbreuker/goenet/pkg/handler"
	"dominicbreuker/goenet/pkg/server"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"
)

// uses fakes from internal_test.go

func TestListen_ServerError(t *testing.T) {
	t.Parallel()

	newErr := errors.New("bind failed")
	newServer := func(context.Context, *config.Session, server.Handler) (serverInterface, error) {
		return nil, newErr
	}

	err := listen(context.Background(), testConfig(), newServer, handlerFactoryFor(nil, nil, nil))
	if !errors.Is(err, newErr) {
		t.Fatalf("listen() error = %v, want %v", err, newErr)
	}
}

func TestListen_ServeError(t *testing.T) {
	t.Parallel()

	serveErr := errors.New("socket gone")
	fs := newFakeServer(serveErr)
	newServer := func(context.Context, *config.Session, server.Handler) (serverInterface, error) {
		return fs, nil
	}

	err := listen(context.Background(), testConfig(), newServer, handlerFactoryFor(nil, nil, nil))
	if !errors.Is(err, serveErr) {
		t.Fatalf("listen() error = %v, want %v", err, serveErr)
	}
	if !fs.isClosed() {
		t.Error("server was not closed")
	}
}

func TestListen_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	fs := newFakeServer(nil)
	newServer := func(context.Context, *config.Session, server.Handler) (serverInterface, error) {
		return fs, nil
	}

	errCh := make(chan error, 1)
	go func() { errCh <- listen(ctx, testConfig(), newServer, handlerFactoryFor(nil, nil, nil)) }()

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("listen() error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("listen() did not return after cancellation")
	}
	if !fs.isClosed() {
		t.Error("server was not closed")
	}
}

func TestListen_PassesHandler(t *testing.T) {
	t.Parallel()

	fh := newFakeHandler(nil, nil)
	var side handler.Side = -1
	fs := newFakeServer(nil)
	handles := make(chan server.Handler, 1)
	newServer := func(ctx context.Context, cfg *config.Session, handle server.Handler) (serverInterface, error) {
		handles <- handle
		return fs, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- listen(ctx, testConfig(), newServer, handlerFactoryFor(fh, nil, &side)) }()

	var handle server.Handler
	select {
	case handle = <-handles:
	case <-time.After(time.Second):
		t.Fatal("server was not created")
	}

	if err := handle(nil, nil); err != nil {
		t.Errorf("handler() error = %v, want nil", err)
	}
	if side != handler.SideListen {
		t.Errorf("side = %s, want listen", side)
	}
	if !fh.isClosed() {
		t.Error("handler was not closed")
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("listen() error = %v", err)
	}
}

func TestMakeHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		handleErr error
		newErr    error
		wantErr   bool
		wantClose bool
	}{
		{"success", nil, nil, false, true},
		{"handle error", errors.New("handle error"), nil, true, true},
		{"closed connection", fmt.Errorf("piping: %w", net.ErrClosed), nil, false, true},
		{"closed pipe", io.ErrClosedPipe, nil, false, true},
		{"creation error", nil, errors.New("mux failed"), true, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fh := newFakeHandler(tc.handleErr, nil)
			var side handler.Side = -1
			handle := makeHandler(context.Background(), testConfig(), handlerFactoryFor(fh, tc.newErr, &side))

			err := handle(nil, nil)
			if (err != nil) != tc.wantErr {
				t.Fatalf("handler() error = %v, wantErr %t", err, tc.wantErr)
			}
			if tc.newErr != nil && !errors.Is(err, tc.newErr) {
				t.Errorf("handler() error = %v, want %v", err, tc.newErr)
			}
			if fh.isClosed() != tc.wantClose {
				t.Errorf("handler closed = %t, want %t", fh.isClosed(), tc.wantClose)
			}
			if side != handler.SideListen {
				t.Errorf("side = %s, want listen", side)
			}
		})
	}
}

func TestMakeHandler_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	fh := newFakeHandler(nil, nil)
	fh.block = fh.closeCh // Handle returns once the handler is closed

	handle := makeHandler(ctx, testConfig(), handlerFactoryFor(fh, nil, nil))

	errCh := make(chan error, 1)
	go func() { errCh <- handle(nil, nil) }()

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("handler() error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler did not return after cancellation")
	}
	if !fh.isClosed() {
		t.Error("handler was not closed")
	}
}

func TestBenign(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"canceled", context.Canceled, true},
		{"wrapped closed", fmt.Errorf("x: %w", net.ErrClosed), true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"other", errors.New("boom"), false},
		{"deadline", context.DeadlineExceeded, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := benign(tc.err); got != tc.want {
				t.Errorf("benign(%v) = %t, want %t", tc.err, got, tc.want)
			}
		})
	}
}
