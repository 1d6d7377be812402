package radar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kamilk/go-radar-driver/internal/can"
	"github.com/kamilk/go-radar-driver/internal/codec"
	"github.com/kamilk/go-radar-driver/internal/track"
	"github.com/kamilk/go-radar-driver/internal/transport"
)

type fakeBus struct {
	mu     sync.Mutex
	sent   []can.Frame
	rx     chan can.Frame
	done   chan struct{}
	closed bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{rx: make(chan can.Frame, 64), done: make(chan struct{})}
}

func (b *fakeBus) Send(fr can.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return transport.ErrBusClosed
	}
	b.sent = append(b.sent, fr)
	return nil
}

func (b *fakeBus) Recv(timeout time.Duration) (can.Frame, bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case fr := <-b.rx:
		return fr, true, nil
	case <-b.done:
		return can.Frame{}, false, transport.ErrBusClosed
	case <-t.C:
		return can.Frame{}, false, nil
	}
}

func (b *fakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}

func (b *fakeBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *fakeBus) sentIDs() []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]uint32, len(b.sent))
	for i, fr := range b.sent {
		ids[i] = fr.ID
	}
	return ids
}

func (b *fakeBus) hasSent(id uint32) bool {
	for _, got := range b.sentIDs() {
		if got == id {
			return true
		}
	}
	return false
}

// installFakeBuses routes socketcan opens to the supplied buses by channel
// name and disables real interface bring-up. Restored via t.Cleanup.
func installFakeBuses(t *testing.T, buses map[string]*fakeBus, openErr map[string]error) {
	t.Helper()
	origOpen, origUp := openSocketCAN, bringUp
	t.Cleanup(func() { openSocketCAN, bringUp = origOpen, origUp })
	openSocketCAN = func(channel string) (transport.Bus, error) {
		if err := openErr[channel]; err != nil {
			return nil, err
		}
		b, ok := buses[channel]
		if !ok {
			return nil, errors.New("no fake bus for " + channel)
		}
		return b, nil
	}
	bringUp = func(context.Context, string, int, []string, bool) error { return nil }
}

func baseConfig() Config {
	return Config{
		RadarChannel:    "can0",
		CarChannel:      "can1",
		NotifierTimeout: 5 * time.Millisecond,
		TrackTimeout:    time.Second,
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// LONG_DIST raw 200 (10.0 m) with the valid bit set, per the TSS-P track
// layout.
var trackPayload = []byte{0x06, 0x40, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00}

func TestStartIngestsTracksAndStopTearsDown(t *testing.T) {
	radarBus, carBus := newFakeBus(), newFakeBus()
	installFakeBuses(t, map[string]*fakeBus{"can0": radarBus, "can1": carBus}, nil)

	d, err := New(baseConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var updates int
	var mu sync.Mutex
	d.RegisterTrackCallback(func(track.Track) {
		mu.Lock()
		updates++
		mu.Unlock()
	})

	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	radarBus.rx <- can.New(0x210, trackPayload)

	waitFor(t, func() bool {
		_, ok := d.Tracks()[0]
		return ok
	}, "track slot 0")
	tr := d.Tracks()[0]
	if tr.LongDist != 10.0 {
		t.Fatalf("LONG_DIST: got %v want 10.0", tr.LongDist)
	}
	mu.Lock()
	got := updates
	mu.Unlock()
	if got != 1 {
		t.Fatalf("expected one callback delivery, got %d", got)
	}
	if d.MessageCount() == 0 {
		t.Fatalf("message counter did not move")
	}

	d.Stop()
	if !radarBus.isClosed() || !carBus.isClosed() {
		t.Fatalf("Stop must close both transports")
	}
	if len(d.Tracks()) != 0 || d.MessageCount() != 0 {
		t.Fatalf("accessors must be empty after Stop")
	}
	d.Stop() // idempotent
	if err := d.Start(); err == nil {
		t.Fatalf("Start after Stop must fail")
	}
}

func TestStartRollbackOnCarBusFailure(t *testing.T) {
	radarBus := newFakeBus()
	installFakeBuses(t,
		map[string]*fakeBus{"can0": radarBus},
		map[string]error{"can1": errors.New("no such device")})

	d, err := New(baseConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = d.Start()
	if err == nil {
		t.Fatalf("Start must fail when the car channel cannot open")
	}
	if !errors.Is(err, ErrOpenBus) {
		t.Fatalf("expected open-bus step, got %v", err)
	}
	var de *DriverError
	if !errors.As(err, &de) {
		t.Fatalf("expected DriverError, got %T", err)
	}
	if !radarBus.isClosed() {
		t.Fatalf("already-opened radar bus must be released on rollback")
	}
	if d.KeepaliveStatus() != nil || len(d.Tracks()) != 0 {
		t.Fatalf("failed start must leave no live state")
	}
}

func TestStartFailsAtSetupStep(t *testing.T) {
	installFakeBuses(t, nil, nil)
	origUp := bringUp
	t.Cleanup(func() { bringUp = origUp })
	bringUp = func(context.Context, string, int, []string, bool) error {
		return errors.New("ip link failed")
	}

	cfg := baseConfig()
	cfg.AutoSetup = true
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(); !errors.Is(err, ErrSetup) {
		t.Fatalf("expected setup step failure, got %v", err)
	}
}

func TestStartFailsAtCodecStep(t *testing.T) {
	radarBus, carBus := newFakeBus(), newFakeBus()
	installFakeBuses(t, map[string]*fakeBus{"can0": radarBus, "can1": carBus}, nil)

	cfg := baseConfig()
	cfg.RadarDB = func() (codec.Codec, error) { return nil, errors.New("corrupt database") }
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(); !errors.Is(err, ErrLoadCodec) {
		t.Fatalf("expected codec step failure, got %v", err)
	}
	if !radarBus.isClosed() || !carBus.isClosed() {
		t.Fatalf("both buses must be released when codec loading fails")
	}
}

func TestKeepaliveEmitsControlTraffic(t *testing.T) {
	radarBus, carBus := newFakeBus(), newFakeBus()
	installFakeBuses(t, map[string]*fakeBus{"can0": radarBus, "can1": carBus}, nil)

	cfg := baseConfig()
	cfg.KeepaliveEnabled = true
	cfg.KeepaliveRateHz = 200
	d, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	waitFor(t, func() bool { return carBus.hasSent(0x343) }, "ACC_CONTROL on the car channel")
	waitFor(t, func() bool {
		st := d.KeepaliveStatus()
		return st != nil && st.TxCount > 0
	}, "keepalive tx counter")
}

func TestKeepaliveDisabled(t *testing.T) {
	radarBus, carBus := newFakeBus(), newFakeBus()
	installFakeBuses(t, map[string]*fakeBus{"can0": radarBus, "can1": carBus}, nil)

	d, err := New(baseConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	if d.KeepaliveStatus() != nil {
		t.Fatalf("status must be nil with keepalive disabled")
	}
	time.Sleep(30 * time.Millisecond)
	if ids := carBus.sentIDs(); len(ids) != 0 {
		t.Fatalf("nothing should be transmitted with keepalive disabled: %v", ids)
	}
}

func TestAccessorsBeforeStart(t *testing.T) {
	d, err := New(baseConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tr := d.Tracks(); tr == nil || len(tr) != 0 {
		t.Fatalf("Tracks before Start: %v", tr)
	}
	if d.MessageCount() != 0 || d.StatusCount() != 0 {
		t.Fatalf("counters must be zero before Start")
	}
	if d.KeepaliveStatus() != nil {
		t.Fatalf("keepalive status must be nil before Start")
	}
}

func TestRetryAfterFailedStart(t *testing.T) {
	radarBus := newFakeBus()
	openErr := map[string]error{"can1": errors.New("transient")}
	installFakeBuses(t, map[string]*fakeBus{"can0": radarBus, "can1": nil}, openErr)

	d, err := New(baseConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Start(); err == nil {
		t.Fatalf("first Start should fail")
	}

	// The device shows up; a retry must succeed from scratch.
	radar2, car2 := newFakeBus(), newFakeBus()
	installFakeBuses(t, map[string]*fakeBus{"can0": radar2, "can1": car2}, nil)
	if err := d.Start(); err != nil {
		t.Fatalf("retry Start: %v", err)
	}
	d.Stop()
}
