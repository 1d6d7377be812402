//go:build linux

package socketcan

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kamilk/go-radar-driver/internal/can"
	"github.com/kamilk/go-radar-driver/internal/transport"
)

// Device is a raw AF_CAN socket bound to one interface, implementing
// transport.Bus. Reads are bounded by SO_RCVTIMEO so the reception loop can
// poll its stop flag.
type Device struct {
	fd int

	mu    sync.Mutex
	rdTO  time.Duration // currently programmed receive timeout
	open  bool
}

// Open binds a raw CAN socket to the named interface.
func Open(iface string) (*Device, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_CAN): %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_CAN_RAW, unix.CAN_RAW_FD_FRAMES, 0); err != nil {
		// Older kernels may not know this option; ignore ENOPROTOOPT
		if err != unix.ENOPROTOOPT {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("disable CAN FD: %w", err)
		}
	}
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("if %q: %w", iface, err)
	}
	sa := &unix.SockaddrCAN{Ifindex: ifi.Index}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("bind(can@%s): %w", iface, err)
	}
	return &Device{fd: fd, open: true}, nil
}

// Close releases the socket. Safe to call more than once.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return nil
	}
	d.open = false
	return unix.Close(d.fd)
}

// Recv reads one classic CAN frame, waiting at most timeout. ok=false with a
// nil error means the timeout elapsed without traffic.
func (d *Device) Recv(timeout time.Duration) (can.Frame, bool, error) {
	if err := d.applyReadTimeout(timeout); err != nil {
		return can.Frame{}, false, err
	}
	var buf [unix.CAN_MTU]byte // classic CAN MTU = 16 bytes
	n, err := unix.Read(d.fd, buf[:])
	if err != nil {
		switch err {
		case unix.EAGAIN, unix.EINTR:
			return can.Frame{}, false, nil
		case unix.EBADF:
			return can.Frame{}, false, transport.ErrBusClosed
		}
		return can.Frame{}, false, err
	}
	if n != unix.CAN_MTU {
		return can.Frame{}, false, fmt.Errorf("short read: %d", n)
	}

	// struct can_frame (linux/can.h):
	//   can_id  u32   [0:4]  (includes EFF/RTR/ERR flags)
	//   can_dlc u8    [4]
	//   pad     3B    [5:8]
	//   data    [8]   [8:16]
	// Fields arrive in host byte order; little-endian on the archs we target.
	var fr can.Frame
	fr.ID = binary.LittleEndian.Uint32(buf[0:4])
	dlc := int(buf[4])
	if dlc > 8 {
		dlc = 8
	}
	fr.Len = uint8(dlc)
	copy(fr.Data[:], buf[8:8+dlc])
	return fr, true, nil
}

// Send writes one classic CAN frame to the raw socket.
func (d *Device) Send(fr can.Frame) error {
	var buf [unix.CAN_MTU]byte
	binary.LittleEndian.PutUint32(buf[0:4], fr.ID)
	buf[4] = fr.Len
	copy(buf[8:], fr.Data[:fr.Len])
	_, err := unix.Write(d.fd, buf[:])
	return err
}

func (d *Device) applyReadTimeout(timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return transport.ErrBusClosed
	}
	if timeout == d.rdTO {
		return nil
	}
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(d.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return fmt.Errorf("set rcvtimeo: %w", err)
	}
	d.rdTO = timeout
	return nil
}

var _ transport.Bus = (*Device)(nil)
