// Package helpers provides common utilities for integration and end-to-end tests.
package helpers

import (
	"dominicbreuker/goenet/mocks"
	"dominicbreuker/goenet/pkg/config"
	"fmt"
	"io"
	"net"
	"time"
)

// SetupMockDependencies creates a complete set of mock dependencies
// for testing with both mocked network and stdio.
func SetupMockDependencies(mockNet *mocks.MockUDPNetwork) (*mocks.MockStdio, *config.Dependencies) {
	mockStdio := mocks.NewMockStdio()

	deps := &config.Dependencies{
		PacketListener: mockNet.ListenPacket,
		Stdin:          func() io.Reader { return mockStdio.GetStdin() },
		Stdout:         func() io.Writer { return mockStdio.GetStdout() },
	}

	return mockStdio, deps
}

// Session returns the options of one endpoint of a test session.
func Session(proto config.Protocol, host string, port int, deps *config.Dependencies) *config.Session {
	return &config.Session{
		Transport: config.Transport{
			Protocol: proto,
			Host:     host,
			Port:     port,
		},
		Timeout: 5 * time.Second,
		Deps:    deps,
	}
}

// WaitForTCP waits until something accepts TCP connections on addr.
// The timeout is specified in milliseconds.
func WaitForTCP(addr string, timeoutMs int) error {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for {
		conn, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for TCP listener on %s: %w", addr, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
