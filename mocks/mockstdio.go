package mocks

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// MockStdio stands in for the standard streams of a process. Tests feed
// stdin through WriteToStdin and inspect everything written to stdout.
type MockStdio struct {
	stdinR *io.PipeReader
	stdinW *io.PipeWriter

	mu      sync.Mutex
	out     strings.Builder
	changed chan struct{} // closed and replaced on every write
	closed  bool
}

// NewMockStdio creates a mock with empty streams.
func NewMockStdio() *MockStdio {
	r, w := io.Pipe()
	return &MockStdio{
		stdinR:  r,
		stdinW:  w,
		changed: make(chan struct{}),
	}
}

// WriteToStdin blocks until the application read data from stdin.
func (m *MockStdio) WriteToStdin(data []byte) (int, error) {
	return m.stdinW.Write(data)
}

// Output returns everything written to stdout so far.
func (m *MockStdio) Output() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.out.String()
}

// GetStdin returns the reader the application uses as stdin.
func (m *MockStdio) GetStdin() io.Reader {
	return m.stdinR
}

// GetStdout returns the writer the application uses as stdout.
func (m *MockStdio) GetStdout() io.Writer {
	return stdoutWriter{m}
}

// WaitForOutput waits until stdout contains expected. The timeout is in
// milliseconds.
func (m *MockStdio) WaitForOutput(expected string, timeoutMs int) error {
	timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
	defer timer.Stop()

	for {
		m.mu.Lock()
		got := m.out.String()
		changed := m.changed
		m.mu.Unlock()

		if strings.Contains(got, expected) {
			return nil
		}

		select {
		case <-changed:
		case <-timer.C:
			return fmt.Errorf("timeout waiting for output %q, got: %q", expected, m.Output())
		}
	}
}

// Close ends stdin with EOF and makes later stdout writes fail.
func (m *MockStdio) Close() error {
	m.stdinW.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type stdoutWriter struct {
	m *MockStdio
}

func (w stdoutWriter) Write(p []byte) (int, error) {
	m := w.m
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, io.ErrClosedPipe
	}
	m.out.Write(p)
	close(m.changed)
	m.changed = make(chan struct{})
	return len(p), nil
}
