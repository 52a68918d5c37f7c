// Package msg defines the control messages goenet endpoints exchange over the
// control stream of a mux session. Messages are gob encoded.
package msg

// Message is the interface that all message types must implement.
// MsgType returns a string identifier for the message type, used for
// debugging and logging purposes.
type Message interface {
	MsgType() string
}
