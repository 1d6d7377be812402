package slcan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/kamilk/go-radar-driver/internal/can"
	"github.com/kamilk/go-radar-driver/internal/logging"
	"github.com/kamilk/go-radar-driver/internal/metrics"
	"github.com/kamilk/go-radar-driver/internal/transport"
)

const (
	txQueueSize = 256
	readBufSize = 1024
	// Reclaim the RX accumulator once drained if bursts of junk grew it
	// beyond this.
	largeBufferReclaimThreshold = 16 * 1024
)

// ErrTxOverflow is returned by Send when the async write buffer is full.
var ErrTxOverflow = errors.New("slcan tx overflow")

// bitrateSetup maps CAN bitrates to the Lawicel Sn setup command.
var bitrateSetup = map[int]string{
	10000:   "S0",
	20000:   "S1",
	50000:   "S2",
	100000:  "S3",
	125000:  "S4",
	250000:  "S5",
	500000:  "S6",
	800000:  "S7",
	1000000: "S8",
}

// openSerial is a hook for tests.
var openSerial = openPort

// Bus drives an SLCAN adapter as a transport.Bus. Writes are funneled
// through a single goroutine; write errors are recorded in metrics rather
// than surfaced, matching the fire-and-forget nature of the serial link.
type Bus struct {
	port    Port
	codec   Codec
	tx      *transport.AsyncTx
	cancel  context.CancelFunc
	acc     *bytes.Buffer
	readBuf []byte
	pending []can.Frame
	closed  atomic.Bool
}

// Open opens the serial device, configures the adapter's CAN bitrate and
// opens its channel. readTimeout bounds each poll on the serial port.
func Open(device string, baud, bitrate int, readTimeout time.Duration) (*Bus, error) {
	setup, ok := bitrateSetup[bitrate]
	if !ok {
		return nil, fmt.Errorf("slcan: unsupported bitrate %d", bitrate)
	}
	sp, err := openSerial(device, baud, readTimeout)
	if err != nil {
		return nil, fmt.Errorf("slcan open %s: %w", device, err)
	}
	for _, cmd := range []string{"C", setup, "O"} {
		if _, err := sp.Write([]byte(cmd + "\r")); err != nil {
			_ = sp.Close()
			return nil, fmt.Errorf("slcan setup %q: %w", cmd, err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		port:    sp,
		cancel:  cancel,
		acc:     bytes.NewBuffer(nil),
		readBuf: make([]byte, readBufSize),
	}
	send := func(fr can.Frame) error {
		_, err := sp.Write(b.codec.Encode(fr))
		return err
	}
	b.tx = transport.NewAsyncTx(ctx, txQueueSize, send, transport.Hooks{
		OnError: func(err error) {
			metrics.IncError(metrics.ErrSLCANWrite)
			logging.L().Error("slcan_write_error", "error", err)
		},
		OnDrop: func() error {
			metrics.IncError(metrics.ErrSLCANWrite)
			return ErrTxOverflow
		},
	})
	return b, nil
}

// Send queues a frame for asynchronous write to the adapter.
func (b *Bus) Send(fr can.Frame) error { return b.tx.SendFrame(fr) }

// Recv returns the next decoded frame if one is buffered or arrives within
// one serial read; ok=false means no traffic this poll. The timeout argument
// is advisory: the underlying port read is bounded by the readTimeout given
// at Open.
func (b *Bus) Recv(timeout time.Duration) (can.Frame, bool, error) {
	if b.closed.Load() {
		return can.Frame{}, false, transport.ErrBusClosed
	}
	if fr, ok := b.pop(); ok {
		return fr, true, nil
	}
	n, err := b.port.Read(b.readBuf)
	if n > 0 {
		b.acc.Write(b.readBuf[:n])
		b.codec.DecodeStream(b.acc, func(fr can.Frame) { b.pending = append(b.pending, fr) })
		if b.acc.Len() == 0 && cap(b.acc.Bytes()) > largeBufferReclaimThreshold {
			b.acc = bytes.NewBuffer(nil)
		}
	}
	if err != nil && !errors.Is(err, io.EOF) {
		if b.closed.Load() {
			return can.Frame{}, false, transport.ErrBusClosed
		}
		metrics.IncError(metrics.ErrSLCANRead)
		return can.Frame{}, false, err
	}
	fr, ok := b.pop()
	return fr, ok, nil
}

func (b *Bus) pop() (can.Frame, bool) {
	if len(b.pending) == 0 {
		return can.Frame{}, false
	}
	fr := b.pending[0]
	b.pending = b.pending[1:]
	return fr, true
}

// Close stops the writer, closes the adapter channel and releases the port.
// Safe to call more than once.
func (b *Bus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	b.tx.Close()
	b.cancel()
	_, _ = b.port.Write([]byte("C\r"))
	return b.port.Close()
}

var _ transport.Bus = (*Bus)(nil)
