//go:build !linux

package socketcan

import (
	"errors"
	"time"

	"github.com/kamilk/go-radar-driver/internal/can"
	"github.com/kamilk/go-radar-driver/internal/transport"
)

var errUnsupported = errors.New("socketcan unsupported on this platform")

// Device is a placeholder so non-linux builds compile; Open always fails.
type Device struct{}

func Open(iface string) (*Device, error) { return nil, errUnsupported }

func (d *Device) Send(can.Frame) error { return errUnsupported }

func (d *Device) Recv(time.Duration) (can.Frame, bool, error) {
	return can.Frame{}, false, errUnsupported
}

func (d *Device) Close() error { return nil }

var _ transport.Bus = (*Device)(nil)
