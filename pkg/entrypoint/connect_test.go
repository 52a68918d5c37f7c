package entrypoint

import (
	"context"
	"dominicbreuker/goenet/pkg/config"
	"dominicbreuker/goenet/pkg/enet"
	"dominicbreuker/goenet/pkg/handler"
	"errors"
	"io"
	"testing"
	"time"
)

// uses fakes from internal_test.go

var (
	errConnect = errors.New("connection failed")
	errMux     = errors.New("mux failed")
	errHandle  = errors.New("handle failed")
)

func TestConnect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		connectErr      error
		newErr          error
		handleErr       error
		wantErr         error
		wantClientClose bool
		wantHandleClose bool
	}{
		{"success", nil, nil, nil, nil, true, true},
		{"connect error", errConnect, nil, nil, errConnect, false, false},
		{"handler creation error", nil, errMux, nil, errMux, true, false},
		{"handle error", nil, nil, errHandle, errHandle, true, true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fc := &fakeClient{connectErr: tc.connectErr}
			fh := newFakeHandler(tc.handleErr, nil)
			newClient := func(context.Context, *config.Session) clientInterface { return fc }

			var side handler.Side = -1
			newHandler := handlerFactoryFor(fh, tc.newErr, &side)
			if tc.connectErr != nil {
				newHandler = func(context.Context, *config.Session, *enet.Peer, io.ReadWriteCloser, handler.Side) (handlerInterface, error) {
					t.Error("handler created although connecting failed")
					return nil, nil
				}
			}

			err := connect(context.Background(), testConfig(), newClient, newHandler)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("connect() error = %v, want nil", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("connect() error = %v, want %v", err, tc.wantErr)
			}
			if fc.isClosed() != tc.wantClientClose {
				t.Errorf("client closed = %t, want %t", fc.isClosed(), tc.wantClientClose)
			}
			if fh.isClosed() != tc.wantHandleClose {
				t.Errorf("handler closed = %t, want %t", fh.isClosed(), tc.wantHandleClose)
			}
			if tc.connectErr == nil && side != handler.SideConnect {
				t.Errorf("side = %s, want connect", side)
			}
		})
	}
}

func TestConnect_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	fc := &fakeClient{}
	fh := newFakeHandler(nil, nil)
	fh.block = make(chan struct{})
	newClient := func(context.Context, *config.Session) clientInterface { return fc }

	errCh := make(chan error, 1)
	go func() { errCh <- connect(ctx, testConfig(), newClient, handlerFactoryFor(fh, nil, nil)) }()

	cancel()

	// destroying the host ends the handler
	deadline := time.Now().Add(time.Second)
	for !fc.isClosed() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !fc.isClosed() {
		t.Fatal("client was not closed after cancellation")
	}
	close(fh.block)

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("connect() error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("connect() did not return after cancellation")
	}
	if !fh.isClosed() {
		t.Error("handler was not closed")
	}
}
