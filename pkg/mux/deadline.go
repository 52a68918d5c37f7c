package mux

import "time"

// ControlOpDeadline bounds single control stream operations and stream opens
// when a session is created without a timeout. Tests may shorten it.
var ControlOpDeadline = 10 * time.Second
