package shared

import (
	"context"
	"dominicbreuker/goenet/pkg/log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"
)

// shutdownGrace is how long hosts get to disconnect their peers after the
// first signal.
const shutdownGrace = 5 * time.Second

// SetupSignalHandling cancels the context on the first interrupt or
// termination signal. A second signal, or the grace period running out,
// exits the process. The returned function stops the handling.
func SetupSignalHandling(cancel context.CancelFunc) (stop func()) {
	sigs := []os.Signal{os.Interrupt}
	if runtime.GOOS != "windows" {
		sigs = append(sigs, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
		// stdout may be a closed pipe while peers still send data
		signal.Ignore(syscall.SIGPIPE)
	}

	sigCh := make(chan os.Signal, 2)
	done := make(chan struct{})
	signal.Notify(sigCh, sigs...)

	go func() {
		var first os.Signal
		select {
		case first = <-sigCh:
		case <-done:
			return
		}
		log.InfoMsg("Shutting down (%s)\n", first)
		cancel()

		select {
		case <-sigCh:
			os.Exit(exitCode(first))
		case <-time.After(shutdownGrace):
			os.Exit(0)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// exitCode maps a signal to the 128+n convention of POSIX shells.
func exitCode(s os.Signal) int {
	if ss, ok := s.(syscall.Signal); ok {
		return 128 + int(ss)
	}
	return 1
}
