// Package track turns radar-channel traffic into time-bounded object state.
package track

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

// Track is one radar-perceived object keyed by its slot in the track-id
// window. New is true when the object appeared for the first time or
// reappeared after aging out of the cache; ReportedNew mirrors the wire's
// own new-track signal when the message defines one.
type Track struct {
	ID          int
	LongDist    float64 // m, positive ahead
	LatDist     float64 // m, positive left
	RelSpeed    float64 // m/s, closing negative
	New         bool
	ReportedNew bool
	LastSeen    time.Time
}

// Callback receives each committed track update in wire-arrival order.
type Callback func(Track)

// SignalNames maps the track message's signal roles to database names.
// NewTrack is optional; the rest are required.
type SignalNames struct {
	Valid    string
	LongDist string
	LatDist  string
	RelSpeed string
	NewTrack string
}

// Config parameterizes a Cache.
type Config struct {
	Codec    codec.Codec
	Window   can.IDRange
	StatusID uint32 // radar heartbeat id; 0 disables status counting
	Signals  SignalNames
	Timeout  time.Duration // entries older than this are stale
	Log      *slog.Logger
	Now      func() time.Time // test hook; nil means time.Now
}

// Cache ingests radar frames and maintains live per-object state. All frame
// handling happens on one reception goroutine; snapshots may be taken from
// any goroutine.
type Cache struct {
	cfg Config
	now func() time.Time
	log *slog.Logger

	rxCount     atomic.Uint64
	statusCount atomic.Uint64

	mu        sync.Mutex
	tracks    map[int]Track
	callbacks []Callback
}

// New constructs an empty cache.
func New(cfg Config) *Cache {
	c := &Cache{
		cfg:    cfg,
		now:    cfg.Now,
		log:    cfg.Log,
		tracks: make(map[int]Track),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.log == nil {
		c.log = logging.L()
	}
	return c
}

// Register adds a callback. Callbacks cannot be removed.
func (c *Cache) Register(cb Callback) {
	if cb == nil {
		return
	}
	c.mu.Lock()
	c.callbacks = append(c.callbacks, cb)
	c.mu.Unlock()
}

// HandleFrame processes one frame from the radar channel. Every frame counts
// toward the message count; only decodable, valid track-window frames touch
// the cache. Decode failures are swallowed.
func (c *Cache) HandleFrame(fr can.Frame) {
	c.rxCount.Add(1)
	metrics.IncRadarRx()

	id := fr.ArbitrationID()
	if c.cfg.StatusID != 0 && id == c.cfg.StatusID {
		c.statusCount.Add(1)
		metrics.IncStatusRx()
		return
	}
	if !c.cfg.Window.Contains(id) {
		return
	}
	sigs, err := c.cfg.Codec.Decode(id, fr.Payload())
	if err != nil {
		metrics.IncDecodeError()
		c.log.Debug("track_decode_error", "id", id, "error", err)
		return
	}
	if sigs[c.cfg.Signals.Valid] != 1 {
		return
	}
	now := c.now()
	slot := int(id - c.cfg.Window.First)
	tr := Track{
		ID:       slot,
		LongDist: sigs[c.cfg.Signals.LongDist],
		LatDist:  sigs[c.cfg.Signals.LatDist],
		RelSpeed: sigs[c.cfg.Signals.RelSpeed],
		LastSeen: now,
	}
	if c.cfg.Signals.NewTrack != "" {
		tr.ReportedNew = sigs[c.cfg.Signals.NewTrack] == 1
	}

	c.mu.Lock()
	prev, had := c.tracks[slot]
	tr.New = !had || c.stale(prev.LastSeen, now)
	c.tracks[slot] = tr
	cbs := c.callbacks
	c.mu.Unlock()
	metrics.IncTrackUpdate()

	// Dispatch outside the lock so a callback may query the cache.
	for _, cb := range cbs {
		c.invoke(cb, tr)
	}
}

func (c *Cache) invoke(cb Callback, tr Track) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncCallbackPanic()
			c.log.Error("track_callback_panic", "track", tr.ID, "panic", r)
		}
	}()
	cb(tr)
}

// Snapshot returns a point-in-time copy of the live tracks, pruning entries
// whose age exceeds the timeout.
func (c *Cache) Snapshot() map[int]Track {
	now := c.now()
	c.mu.Lock()
	out := make(map[int]Track, len(c.tracks))
	for id, tr := range c.tracks {
		if c.stale(tr.LastSeen, now) {
			delete(c.tracks, id)
			continue
		}
		out[id] = tr
	}
	c.mu.Unlock()
	metrics.SetTracksActive(len(out))
	return out
}

// stale reports whether an entry last seen at last has aged out by now.
// A zero timeout means entries expire as soon as any time has passed.
func (c *Cache) stale(last, now time.Time) bool {
	return now.Sub(last) > c.cfg.Timeout
}

// MessageCount is the total number of frames observed on the radar channel.
func (c *Cache) MessageCount() uint64 { return c.rxCount.Load() }

// StatusCount is the number of radar heartbeat frames observed.
func (c *Cache) StatusCount() uint64 { return c.statusCount.Load() }
