// Package keepalive emulates the bus presence of the absent driving support
// unit so the radar keeps transmitting.
package keepalive

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kamilk/go-radar-driver/internal/can"
	"github.com/kamilk/go-radar-driver/internal/codec"
	"github.com/kamilk/go-radar-driver/internal/logging"
	"github.com/kamilk/go-radar-driver/internal/metrics"
)

// timeNow and sleepFn are test hooks.
var (
	timeNow = time.Now
	sleepFn = sleepWithStop
)

// Channel selects which bus a static frame targets.
type Channel uint8

const (
	ChannelCar Channel = iota
	ChannelRadar
)

// Sink is the send half of a bus channel.
type Sink interface {
	Send(can.Frame) error
}

// FrameSpec is one fixed frame emitted every PeriodTicks ticks; it fires on
// ticks 0, P, 2P, ...
type FrameSpec struct {
	ID          uint32
	Channel     Channel
	PeriodTicks uint64 // >= 1
	Payload     []byte
}

// ControlSpec names a codec message and the signal values to encode into it.
type ControlSpec struct {
	Message string
	Signals map[string]float64
}

// Status is the scheduler's externally visible state. TxCount counts only
// successful sends; LastError holds the most recent encode or send failure.
type Status struct {
	TxCount   uint64
	LastError string
}

// Config parameterizes a Scheduler.
type Config struct {
	RateHz  float64
	Static  []FrameSpec
	Startup []ControlSpec // encoded and sent once on the car channel before the loop
	Control ControlSpec   // freshly encoded and sent on the car channel every tick
	Codec   codec.Codec
	Car     Sink
	Radar   Sink
	Log     *slog.Logger
}

// Scheduler drives outbound emulation traffic at a fixed rate. Deadlines
// advance by the tick period rather than sleeping the period after each
// iteration, so the rate does not drift. Send and encode failures never stop
// the loop; the stop signal is checked once per tick.
type Scheduler struct {
	cfg    Config
	period time.Duration
	log    *slog.Logger

	txCount atomic.Uint64
	errMu   sync.Mutex
	lastErr string

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// New constructs a scheduler; Config.RateHz must be positive.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		cfg:    cfg,
		period: time.Duration(float64(time.Second) / cfg.RateHz),
		log:    cfg.Log,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if s.log == nil {
		s.log = logging.L()
	}
	return s
}

// Start launches the transmission goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop signals the loop and waits for it to finish the current tick. Stop
// latency is bounded by one tick period. Idempotent.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}

// Status returns a copy of the transmit counters.
func (s *Scheduler) Status() Status {
	s.errMu.Lock()
	last := s.lastErr
	s.errMu.Unlock()
	return Status{TxCount: s.txCount.Load(), LastError: last}
}

func (s *Scheduler) run() {
	defer close(s.done)
	s.log.Info("keepalive_start", "rate_hz", s.cfg.RateHz, "static_frames", len(s.cfg.Static))
	defer s.log.Info("keepalive_end")

	for _, spec := range s.cfg.Startup {
		s.sendControl(spec)
	}

	var tick uint64
	next := timeNow()
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		s.runTick(tick)
		tick++
		next = next.Add(s.period)
		if !sleepFn(next.Sub(timeNow()), s.stop) {
			return
		}
	}
}

// runTick does one tick's transmissions: the control frame plus every static
// frame whose period divides the tick.
func (s *Scheduler) runTick(tick uint64) {
	s.sendControl(s.cfg.Control)
	for _, spec := range s.cfg.Static {
		period := spec.PeriodTicks
		if period == 0 {
			period = 1
		}
		if tick%period != 0 {
			continue
		}
		sink := s.cfg.Car
		if spec.Channel == ChannelRadar {
			sink = s.cfg.Radar
		}
		s.send(sink, can.New(spec.ID, spec.Payload))
	}
}

func (s *Scheduler) sendControl(spec ControlSpec) {
	if spec.Message == "" {
		return
	}
	fr, err := s.cfg.Codec.Encode(spec.Message, spec.Signals)
	if err != nil {
		s.recordError(err)
		return
	}
	s.send(s.cfg.Car, fr)
}

func (s *Scheduler) send(sink Sink, fr can.Frame) {
	if sink == nil {
		return
	}
	if err := sink.Send(fr); err != nil {
		s.recordError(err)
		return
	}
	s.txCount.Add(1)
	metrics.IncKeepaliveTx()
}

func (s *Scheduler) recordError(err error) {
	metrics.IncKeepaliveError()
	s.errMu.Lock()
	s.lastErr = err.Error()
	s.errMu.Unlock()
	s.log.Warn("keepalive_error", "error", err)
}

// sleepWithStop waits d or until stop closes; returns false when stopped.
func sleepWithStop(d time.Duration, stop <-chan struct{}) bool {
	if d <= 0 {
		// Behind schedule; yield to the stop check only.
		select {
		case <-stop:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}
