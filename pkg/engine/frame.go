package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"
)

// command identifies a frame inside a peer's KCP stream.
type command uint8

const (
	cmdConnect command = iota + 1
	cmdVerifyConnect
	cmdDisconnect
	cmdDisconnectAck
	cmdPing
	cmdSend
	cmdBandwidthLimit
)

func (c command) String() string {
	switch c {
	case cmdConnect:
		return "connect"
	case cmdVerifyConnect:
		return "verify-connect"
	case cmdDisconnect:
		return "disconnect"
	case cmdDisconnectAck:
		return "disconnect-ack"
	case cmdPing:
		return "ping"
	case cmdSend:
		return "send"
	case cmdBandwidthLimit:
		return "bandwidth-limit"
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

// frameCompressed marks an s2-compressed payload in the flags byte.
const frameCompressed = 0x80

// Frame layout, after a big-endian uint32 length prefix:
//
//	cmd(1) channel(1) flags(1) reserved(1) data(4) payload...
const frameHeaderSize = 8

var maxFrameSize = frameHeaderSize + s2.MaxEncodedLen(MaxPacketSize)

var errFrameTooLarge = errors.New("frame too large")

type frame struct {
	cmd     command
	channel uint8
	flags   PacketFlag
	data    uint32
	payload []byte
}

// encodeFrame serializes f with its length prefix. Send payloads are
// compressed when compress is set and it saves space.
func encodeFrame(f frame, compress bool) []byte {
	payload := f.payload
	flags := byte(f.flags) &^ frameCompressed
	if compress && f.cmd == cmdSend && len(payload) > 0 {
		if enc := s2.Encode(nil, payload); len(enc) < len(payload) {
			payload = enc
			flags |= frameCompressed
		}
	}

	buf := make([]byte, 4+frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(frameHeaderSize+len(payload)))
	buf[4] = byte(f.cmd)
	buf[5] = f.channel
	buf[6] = flags
	binary.BigEndian.PutUint32(buf[8:12], f.data)
	copy(buf[12:], payload)
	return buf
}

// readFrame reads one frame, decompressing its payload if needed.
func readFrame(r io.Reader) (frame, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return frame{}, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n < frameHeaderSize {
		return frame{}, fmt.Errorf("frame length %d below header size", n)
	}
	if int(n) > maxFrameSize {
		return frame{}, fmt.Errorf("frame length %d: %w", n, errFrameTooLarge)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return frame{}, err
	}

	f := frame{
		cmd:     command(buf[0]),
		channel: buf[1],
		flags:   PacketFlag(buf[2] &^ frameCompressed),
		data:    binary.BigEndian.Uint32(buf[4:8]),
		payload: buf[frameHeaderSize:],
	}

	if buf[2]&frameCompressed != 0 {
		size, err := s2.DecodedLen(f.payload)
		if err != nil {
			return frame{}, fmt.Errorf("s2.DecodedLen(): %w", err)
		}
		if size > MaxPacketSize {
			return frame{}, fmt.Errorf("decoded length %d: %w", size, errFrameTooLarge)
		}
		f.payload, err = s2.Decode(nil, f.payload)
		if err != nil {
			return frame{}, fmt.Errorf("s2.Decode(): %w", err)
		}
	}

	return f, nil
}

// connectPayload carries the sender's bandwidth limits in connect,
// verify-connect and bandwidth-limit frames.
func connectPayload(down, up uint32) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], down)
	binary.BigEndian.PutUint32(b[4:8], up)
	return b
}

func parseConnectPayload(b []byte) (down, up uint32) {
	if len(b) < 8 {
		return 0, 0
	}
	return binary.BigEndian.Uint32(b[0:4]), binary.BigEndian.Uint32(b[4:8])
}
