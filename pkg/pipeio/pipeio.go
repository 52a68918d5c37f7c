// Package pipeio connects byte streams: the process's standard I/O and
// goenet channel streams.
package pipeio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"

	"github.com/muesli/cancelreader"
)

// Pipe copies between rwc1 and rwc2 in both directions until either side is
// done or ctx is cancelled, then closes both. Copy errors that only signal
// the other side going away are not passed to logfunc.
func Pipe(ctx context.Context, rwc1 io.ReadWriteCloser, rwc2 io.ReadWriteCloser, logfunc func(error)) {
	var o sync.Once
	done := make(chan struct{})

	close := func() {
		rwc1.Close()
		rwc2.Close()
		closeChan(done)
	}

	go func() {
		if _, err := io.Copy(rwc1, rwc2); err != nil && !benign(err) {
			logfunc(fmt.Errorf("io.Copy(rwc1, rwc2): %w", err))
		}
		o.Do(close)
	}()

	go func() {
		if _, err := io.Copy(rwc2, rwc1); err != nil && !benign(err) {
			logfunc(fmt.Errorf("io.Copy(rwc2, rwc1): %w", err))
		}
		o.Do(close)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		o.Do(close)
	}
}

func closeChan(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func benign(err error) bool {
	return errors.Is(err, cancelreader.ErrCanceled) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
