// Package config holds the options of goenet hosts and the command line
// transport settings, with validation and YAML loading.
package config

import (
	"bytes"
	"dominicbreuker/goenet/pkg/format"
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Protocol is the datagram transport a host runs on.
type Protocol int

// Supported transports.
const (
	ProtoUDP Protocol = iota + 1
	ProtoWS
)

func (p Protocol) String() string {
	switch p {
	case ProtoUDP:
		return "udp"
	case ProtoWS:
		return "ws"
	}
	return ""
}

// Defaults applied to zero-valued Host options.
const (
	DefaultAddress     = "0.0.0.0:0"
	DefaultMaxPeers    = 128
	DefaultMaxChannels = 5
	DefaultInterval    = 10 * time.Millisecond

	maxChannelLimit = 255
)

// Host configures a goenet host. Zero values select the defaults.
type Host struct {
	Address                  string        `yaml:"address"`
	MaxPeers                 int           `yaml:"maxPeers"`
	MaxChannels              int           `yaml:"maxChannels"`
	DownstreamBandwidthLimit uint32        `yaml:"downstreamBandwidthLimit"`
	UpstreamBandwidthLimit   uint32        `yaml:"upstreamBandwidthLimit"`
	Interval                 time.Duration `yaml:"interval"`
	PingInterval             time.Duration `yaml:"pingInterval"`
	PeerTimeout              time.Duration `yaml:"peerTimeout"`
	ConnectTimeout           time.Duration `yaml:"connectTimeout"`
	Compress                 bool          `yaml:"compress"`
	Verbose                  bool          `yaml:"verbose"`

	// Key is a secret shared by both ends. Sessions are encrypted with a
	// key derived from it; peers with another secret cannot connect.
	Key string `yaml:"key"`

	// CustomSocket is adopted by hosts created from a socket. The host
	// takes ownership and closes it on destroy.
	CustomSocket net.PacketConn `yaml:"-"`

	// Deps allows dependency injection for testing.
	Deps *Dependencies `yaml:"-"`
}

// Default returns a Host with every default filled in.
func Default() *Host {
	c := &Host{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero-valued options.
func (c *Host) ApplyDefaults() {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.MaxPeers == 0 {
		c.MaxPeers = DefaultMaxPeers
	}
	if c.MaxChannels == 0 {
		c.MaxChannels = DefaultMaxChannels
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
}

// Validate ...
func (c *Host) Validate() []error {
	var errors []error

	if c.Address != "" {
		if _, _, err := net.SplitHostPort(c.Address); err != nil {
			errors = append(errors, fmt.Errorf("'address' %q: %s", c.Address, err))
		}
	}

	if c.MaxPeers < 0 {
		errors = append(errors, fmt.Errorf("'maxPeers' must not be negative"))
	}

	if c.MaxChannels < 0 || c.MaxChannels > maxChannelLimit {
		errors = append(errors, fmt.Errorf("'maxChannels' must be in [0, %d]", maxChannelLimit))
	}

	if c.Interval < 0 {
		errors = append(errors, fmt.Errorf("'interval' must not be negative"))
	}

	for name, d := range map[string]time.Duration{
		"pingInterval":   c.PingInterval,
		"peerTimeout":    c.PeerTimeout,
		"connectTimeout": c.ConnectTimeout,
	} {
		if d < 0 {
			errors = append(errors, fmt.Errorf("'%s' must not be negative", name))
		}
	}

	return errors
}

// ParseHost decodes YAML host options. Unknown keys are rejected.
func ParseHost(data []byte) (*Host, error) {
	c := &Host{}
	if len(data) == 0 {
		return c, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("yaml.Decode(): %w", err)
	}
	return c, nil
}

// LoadHost reads host options from a YAML file.
func LoadHost(path string) (*Host, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile(%s): %w", path, err)
	}

	c, err := ParseHost(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return c, nil
}

// Merge copies the options set in o over c.
func (c *Host) Merge(o *Host) {
	if o == nil {
		return
	}
	if o.Address != "" {
		c.Address = o.Address
	}
	if o.MaxPeers != 0 {
		c.MaxPeers = o.MaxPeers
	}
	if o.MaxChannels != 0 {
		c.MaxChannels = o.MaxChannels
	}
	if o.DownstreamBandwidthLimit != 0 {
		c.DownstreamBandwidthLimit = o.DownstreamBandwidthLimit
	}
	if o.UpstreamBandwidthLimit != 0 {
		c.UpstreamBandwidthLimit = o.UpstreamBandwidthLimit
	}
	if o.Interval != 0 {
		c.Interval = o.Interval
	}
	if o.PingInterval != 0 {
		c.PingInterval = o.PingInterval
	}
	if o.PeerTimeout != 0 {
		c.PeerTimeout = o.PeerTimeout
	}
	if o.ConnectTimeout != 0 {
		c.ConnectTimeout = o.ConnectTimeout
	}
	if o.Key != "" {
		c.Key = o.Key
	}
	c.Compress = c.Compress || o.Compress
	c.Verbose = c.Verbose || o.Verbose
	if o.CustomSocket != nil {
		c.CustomSocket = o.CustomSocket
	}
	if o.Deps != nil {
		c.Deps = o.Deps
	}
}

// Transport is where the command line tool listens or connects.
type Transport struct {
	Protocol Protocol
	Host     string
	Port     int
}

// Validate ...
func (t *Transport) Validate() []error {
	var errors []error

	if t.Protocol != ProtoUDP && t.Protocol != ProtoWS {
		errors = append(errors, fmt.Errorf("unsupported protocol"))
	}

	if err := validatePort(t.Port); err != nil {
		errors = append(errors, fmt.Errorf("port: %s", err))
	}

	return errors
}

// Addr returns host:port.
func (t *Transport) Addr() string {
	return format.Addr(t.Host, t.Port)
}
