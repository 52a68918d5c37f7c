package pipeio

import (
	"io"
	"os"

	"github.com/muesli/cancelreader"
)

// Stdio joins a stdin reader and a stdout writer into one ReadWriteCloser.
// If stdin is a file the platform can poll, Close interrupts a blocked Read.
type Stdio struct {
	in     io.Reader
	cancel cancelreader.CancelReader
	out    io.Writer
}

// NewStdio creates a Stdio over stdin and stdout, os.Stdin and os.Stdout when
// nil.
func NewStdio(stdin io.Reader, stdout io.Writer) *Stdio {
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	s := &Stdio{in: stdin, out: stdout}

	if f, ok := stdin.(*os.File); ok {
		if cr, err := cancelreader.NewReader(f); err == nil {
			s.cancel = cr
		}
	}
	return s
}

func (s *Stdio) Read(p []byte) (int, error) {
	if s.cancel != nil {
		return s.cancel.Read(p)
	}
	return s.in.Read(p)
}

func (s *Stdio) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

// Close interrupts a pending Read if possible. Stdout stays open.
func (s *Stdio) Close() error {
	if s.cancel != nil {
		s.cancel.Cancel()
	}
	return nil
}
