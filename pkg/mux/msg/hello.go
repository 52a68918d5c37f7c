package msg

import "encoding/gob"

func init() {
	gob.Register(Hello{})
}

// Hello is sent by both endpoints once the session is up.
type Hello struct {
	Version string
	Name    string
}

// MsgType returns the message type identifier for Hello messages.
func (m Hello) MsgType() string {
	return "Hello"
}
