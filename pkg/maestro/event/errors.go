package event

import "errors"

// ErrBusClosed indicates a publish or subscribe on a closed bus.
var ErrBusClosed = errors.New("event bus closed")
