package config

import (
	"dominicbreuker/goenet/pkg/log"
	"fmt"
	"time"
)

// Defaults of the command line tool.
const (
	DefaultChannel  = 0
	DefaultChannels = 2
	DefaultPeers    = 16
	DefaultTimeout  = 10 * time.Second
)

// Session configures one run of the command line tool: where to listen or
// connect, the host options, and how stdio is piped through a peer.
type Session struct {
	Transport

	// Channel carries the piped data
	Channel int
	// Channels is requested when connecting
	Channels int
	// Peers limits concurrently handled peers when listening
	Peers int
	// Timeout bounds control operations and waiting for a peer slot
	Timeout time.Duration
	// LogFile receives a hex dump of every datagram when set
	LogFile string
	Verbose bool

	Host   *Host
	Logger *log.Logger
	Deps   *Dependencies
}

// HostConfig returns the host options to create hosts with. Transport and
// dependencies of the session are applied to a copy of s.Host.
func (s *Session) HostConfig() *Host {
	c := &Host{}
	if s.Host != nil {
		*c = *s.Host
	}
	c.Verbose = c.Verbose || s.Verbose
	if s.Deps != nil {
		c.Deps = s.Deps
	}
	return c
}

// Validate ...
func (s *Session) Validate() []error {
	errors := s.Transport.Validate()

	channels := s.Channels
	if channels == 0 {
		channels = DefaultChannels
	}
	if s.Channel < 0 || s.Channel >= channels {
		errors = append(errors, fmt.Errorf("'channel' %d must be in [0, %d)", s.Channel, channels))
	}
	if s.Channels < 0 || s.Channels > maxChannelLimit {
		errors = append(errors, fmt.Errorf("'channels' must be in [0, %d]", maxChannelLimit))
	}

	if s.Peers < 0 {
		errors = append(errors, fmt.Errorf("'peers' must not be negative"))
	}

	if s.Timeout < 0 {
		errors = append(errors, fmt.Errorf("'timeout' must not be negative"))
	}

	if s.Host != nil {
		errors = append(errors, s.Host.Validate()...)
	}

	return errors
}

// GetChannels returns the number of channels to request.
func (s *Session) GetChannels() int {
	if s.Channels == 0 {
		return DefaultChannels
	}
	return s.Channels
}

// GetTimeout returns the control operation timeout.
func (s *Session) GetTimeout() time.Duration {
	if s.Timeout == 0 {
		return DefaultTimeout
	}
	return s.Timeout
}
