package config

import (
	"io"
	"net"
	"os"
)

// Dependencies replaces the sockets and standard streams a goenet process
// uses. Nil fields, and a nil *Dependencies, fall back to the real ones.
type Dependencies struct {
	PacketListener PacketListenerFunc
	Stdin          StdinFunc
	Stdout         StdoutFunc
}

// PacketListenerFunc opens a datagram socket, matching net.ListenPacket.
type PacketListenerFunc func(network, address string) (net.PacketConn, error)

// StdinFunc returns the stream piped to the remote end.
type StdinFunc func() io.Reader

// StdoutFunc returns the stream data from the remote end is written to.
type StdoutFunc func() io.Writer

// Stdio returns the standard streams a session pipes.
func (d *Dependencies) Stdio() (io.Reader, io.Writer) {
	var in io.Reader = os.Stdin
	var out io.Writer = os.Stdout
	if d == nil {
		return in, out
	}
	if d.Stdin != nil {
		in = d.Stdin()
	}
	if d.Stdout != nil {
		out = d.Stdout()
	}
	return in, out
}
