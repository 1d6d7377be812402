package transport

import (
	"errors"
	"time"

	"github.com/kamilk/go-radar-driver/internal/can"
)

// Bus is one physical or logical CAN channel. Recv polls with a bounded
// timeout and reports ok=false when the timeout elapsed without a frame;
// the reception loop uses that to re-check its stop flag.
type Bus interface {
	Send(can.Frame) error
	Recv(timeout time.Duration) (fr can.Frame, ok bool, err error)
	Close() error
}

// FrameSink is a generic CAN frame transmission target.
type FrameSink interface {
	SendFrame(can.Frame) error
}

// ErrBusClosed is returned by transports after Close.
var ErrBusClosed = errors.New("transport: bus closed")
