package msg

import "encoding/gob"

func init() {
	gob.Register(Bye{})
}

// Bye announces that the sender is done writing data.
type Bye struct {
	Reason string
}

// MsgType ...
func (m Bye) MsgType() string {
	return "Bye"
}
