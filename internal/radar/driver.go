// Package radar orchestrates the driving-support-unit emulation and track
// ingestion for a Toyota millimeter-wave radar: it owns the two bus
// channels, runs the keepalive scheduler on the car side and feeds the track
// cache from the radar side.
package radar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kamilk/go-radar-driver/internal/codec"
	"github.com/kamilk/go-radar-driver/internal/ifup"
	"github.com/kamilk/go-radar-driver/internal/keepalive"
	"github.com/kamilk/go-radar-driver/internal/logging"
	"github.com/kamilk/go-radar-driver/internal/metrics"
	"github.com/kamilk/go-radar-driver/internal/slcan"
	"github.com/kamilk/go-radar-driver/internal/socketcan"
	"github.com/kamilk/go-radar-driver/internal/track"
	"github.com/kamilk/go-radar-driver/internal/transport"
	"github.com/kamilk/go-radar-driver/internal/vehicles"
)

const (
	rxBackoffMin = 20 * time.Millisecond
	rxBackoffMax = 500 * time.Millisecond
)

// Hooks for tests.
var (
	openSocketCAN = func(channel string) (transport.Bus, error) { return socketcan.Open(channel) }
	openSLCAN     = func(device string, baud, bitrate int, readTO time.Duration) (transport.Bus, error) {
		return slcan.Open(device, baud, bitrate, readTO)
	}
	bringUp = ifup.BringUp
	sleepFn = time.Sleep
)

type lifecycle int

const (
	stateCreated lifecycle = iota
	stateStarting
	stateRunning
	stateStopped
)

// Driver is the public entry point. Construct with New, then Start; read
// accessors are non-blocking and return empty values before a successful
// Start and after Stop.
type Driver struct {
	cfg     Config
	profile vehicles.Profile
	log     *slog.Logger

	mu         sync.Mutex
	state      lifecycle
	radarBus   transport.Bus
	carBus     transport.Bus
	cache      *track.Cache
	sched      *keepalive.Scheduler
	pendingCbs []track.Callback
	rxStop     chan struct{}
	rxDone     chan struct{}
}

// New validates the configuration and returns an idle driver.
func New(cfg Config) (*Driver, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	profile, _ := vehicles.Lookup(cfg.Vehicle)
	log := cfg.Log
	if log == nil {
		log = logging.L()
	}
	return &Driver{
		cfg:     cfg,
		profile: profile,
		log:     log.With("vehicle", profile.Name),
	}, nil
}

// RegisterTrackCallback adds a callback invoked for every committed track
// update, in wire-arrival order. May be called before or after Start;
// callbacks cannot be removed.
func (d *Driver) RegisterTrackCallback(cb track.Callback) {
	if cb == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cache != nil {
		d.cache.Register(cb)
		return
	}
	d.pendingCbs = append(d.pendingCbs, cb)
}

// Start brings up the channels, loads the codecs and launches the reception
// and keepalive goroutines. On failure every already-acquired resource is
// released and a single DriverError identifies the failing step; no
// goroutine is left running.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != stateCreated {
		return errors.New("radar: driver already started or stopped")
	}
	d.state = stateStarting

	var cleanups []func()
	fail := func(step error, err error) error {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		d.state = stateCreated
		return &DriverError{Step: step, Err: err}
	}

	// (1) optional interface bring-up
	if d.cfg.AutoSetup {
		for _, ch := range d.setupChannels() {
			if err := bringUp(context.Background(), ch, d.cfg.Bitrate, d.cfg.SetupExtraArgs, d.cfg.UseSudo); err != nil {
				metrics.IncError(metrics.ErrSetup)
				return fail(ErrSetup, err)
			}
		}
	}

	// (2) open both channel transports
	radarBus, err := d.openBus(d.cfg.radarInterface(), d.cfg.RadarChannel)
	if err != nil {
		return fail(ErrOpenBus, fmt.Errorf("radar channel %s: %w", d.cfg.RadarChannel, err))
	}
	cleanups = append(cleanups, func() { _ = radarBus.Close() })
	carBus, err := d.openBus(d.cfg.carInterface(), d.cfg.CarChannel)
	if err != nil {
		return fail(ErrOpenBus, fmt.Errorf("car channel %s: %w", d.cfg.CarChannel, err))
	}
	cleanups = append(cleanups, func() { _ = carBus.Close() })

	// (3) load both codec handles
	radarCodec, err := d.loadCodec(d.cfg.RadarDB, d.profile.RadarDB)
	if err != nil {
		return fail(ErrLoadCodec, fmt.Errorf("radar db: %w", err))
	}
	controlCodec, err := d.loadCodec(d.cfg.ControlDB, d.profile.ControlDB)
	if err != nil {
		return fail(ErrLoadCodec, fmt.Errorf("control db: %w", err))
	}

	// (4) track cache bound to the radar channel
	cache := track.New(track.Config{
		Codec:    radarCodec,
		Window:   d.profile.TrackWindow,
		StatusID: d.profile.StatusID,
		Signals:  d.profile.TrackSignals,
		Timeout:  d.cfg.TrackTimeout,
		Log:      d.log,
	})
	for _, cb := range d.pendingCbs {
		cache.Register(cb)
	}
	d.pendingCbs = nil

	// (5) keepalive scheduler bound to the car channel
	var sched *keepalive.Scheduler
	if d.cfg.KeepaliveEnabled {
		sched = keepalive.New(keepalive.Config{
			RateHz:  d.cfg.KeepaliveRateHz,
			Static:  d.profile.Static,
			Startup: d.profile.Startup,
			Control: d.profile.Control,
			Codec:   controlCodec,
			Car:     carBus,
			Radar:   radarBus,
			Log:     d.log,
		})
	}

	d.radarBus = radarBus
	d.carBus = carBus
	d.cache = cache
	d.sched = sched
	d.rxStop = make(chan struct{})
	d.rxDone = make(chan struct{})
	go d.rxLoop(radarBus, cache, d.rxStop, d.rxDone)
	if sched != nil {
		sched.Start()
	}
	d.state = stateRunning
	d.log.Info("radar_driver_started",
		"radar_channel", d.cfg.RadarChannel,
		"car_channel", d.cfg.CarChannel,
		"keepalive", d.cfg.KeepaliveEnabled)
	return nil
}

func (d *Driver) setupChannels() []string {
	var chs []string
	if d.cfg.radarInterface() == TransportSocketCAN {
		chs = append(chs, d.cfg.RadarChannel)
	}
	if d.cfg.carInterface() == TransportSocketCAN && d.cfg.CarChannel != d.cfg.RadarChannel {
		chs = append(chs, d.cfg.CarChannel)
	}
	return chs
}

func (d *Driver) openBus(kind, channel string) (transport.Bus, error) {
	switch kind {
	case TransportSLCAN:
		return openSLCAN(channel, d.cfg.SerialBaud, d.cfg.Bitrate, d.cfg.NotifierTimeout)
	default:
		return openSocketCAN(channel)
	}
}

func (d *Driver) loadCodec(override, fallback codec.Loader) (codec.Codec, error) {
	loader := fallback
	if override != nil {
		loader = override
	}
	return loader()
}

// rxLoop polls the radar channel and feeds the cache until stopped. Read
// errors back off exponentially; they never terminate the loop short of the
// bus being closed.
func (d *Driver) rxLoop(bus transport.Bus, cache *track.Cache, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer d.log.Info("radar_rx_end")
	backoff := rxBackoffMin
	for {
		select {
		case <-stop:
			return
		default:
		}
		fr, ok, err := bus.Recv(d.cfg.NotifierTimeout)
		if err != nil {
			if errors.Is(err, transport.ErrBusClosed) {
				return
			}
			select {
			case <-stop:
				return
			default:
			}
			metrics.IncError(metrics.ErrRadarRead)
			d.log.Warn("radar_read_error", "error", err, "backoff", backoff)
			sleepFn(backoff)
			backoff *= 2
			if backoff > rxBackoffMax {
				backoff = rxBackoffMax
			}
			continue
		}
		backoff = rxBackoffMin
		if ok {
			cache.HandleFrame(fr)
		}
	}
}

// Stop halts the scheduler and the reception loop, joins both and closes
// both transports. Idempotent, and safe when Start was never called or
// failed.
func (d *Driver) Stop() {
	d.mu.Lock()
	if d.state != stateRunning {
		d.state = stateStopped
		d.mu.Unlock()
		return
	}
	d.state = stateStopped
	radarBus, carBus := d.radarBus, d.carBus
	sched, rxStop, rxDone := d.sched, d.rxStop, d.rxDone
	d.radarBus, d.carBus, d.cache, d.sched = nil, nil, nil, nil
	d.rxStop, d.rxDone = nil, nil
	d.mu.Unlock()

	close(rxStop)
	if sched != nil {
		sched.Stop()
	}
	<-rxDone
	_ = radarBus.Close()
	_ = carBus.Close()
	d.log.Info("radar_driver_stopped")
}

// Tracks returns a point-in-time copy of the live tracks with stale entries
// filtered out. Empty before Start and after Stop.
func (d *Driver) Tracks() map[int]track.Track {
	d.mu.Lock()
	cache := d.cache
	d.mu.Unlock()
	if cache == nil {
		return map[int]track.Track{}
	}
	return cache.Snapshot()
}

// MessageCount is the total number of frames observed on the radar channel,
// decodable or not. Zero before Start and after Stop.
func (d *Driver) MessageCount() uint64 {
	d.mu.Lock()
	cache := d.cache
	d.mu.Unlock()
	if cache == nil {
		return 0
	}
	return cache.MessageCount()
}

// StatusCount is the number of radar heartbeat frames observed; it tells
// "radar alive, not tracking" apart from "radar silent".
func (d *Driver) StatusCount() uint64 {
	d.mu.Lock()
	cache := d.cache
	d.mu.Unlock()
	if cache == nil {
		return 0
	}
	return cache.StatusCount()
}

// KeepaliveStatus reports the scheduler's counters, or nil when keepalive is
// disabled or the driver is not running.
func (d *Driver) KeepaliveStatus() *keepalive.Status {
	d.mu.Lock()
	sched := d.sched
	d.mu.Unlock()
	if sched == nil {
		return nil
	}
	st := sched.Status()
	return &st
}
