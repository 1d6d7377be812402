package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kamilk/go-radar-driver/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus collectors
var (
	RadarRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_rx_frames_total",
		Help: "Total frames observed on the radar channel.",
	})
	RadarStatusFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_status_frames_total",
		Help: "Total radar heartbeat/status frames observed.",
	})
	TrackUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_track_updates_total",
		Help: "Total valid track decodes applied to the cache.",
	})
	TracksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radar_tracks_active",
		Help: "Tracks in the cache at the last snapshot.",
	})
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_decode_errors_total",
		Help: "Track-window frames that failed to decode.",
	})
	CallbackPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radar_callback_panics_total",
		Help: "Track callbacks that panicked and were recovered.",
	})
	KeepaliveTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keepalive_tx_frames_total",
		Help: "Total keepalive frames sent on the car channel.",
	})
	KeepaliveErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keepalive_errors_total",
		Help: "Keepalive encode or send failures.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrRadarRead   = "radar_read"
	ErrCarWrite    = "car_write"
	ErrCarOverflow = "car_tx_overflow"
	ErrSLCANWrite  = "slcan_write"
	ErrSLCANRead   = "slcan_read"
	ErrSetup       = "ifup"
)

// Local mirrored counters so in-process status logging does not have to
// scrape Prometheus.
var (
	localRadarRx    uint64
	localStatusRx   uint64
	localTrackUpd   uint64
	localDecodeErr  uint64
	localCbPanics   uint64
	localKaTx       uint64
	localKaErr      uint64
	localErrors     uint64
	localTracksLive uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	RadarRx      uint64
	StatusRx     uint64
	TrackUpdates uint64
	DecodeErrors uint64
	CbPanics     uint64
	KeepaliveTx  uint64
	KeepaliveErr uint64
	Errors       uint64
	TracksActive uint64
}

func Snap() Snapshot {
	return Snapshot{
		RadarRx:      atomic.LoadUint64(&localRadarRx),
		StatusRx:     atomic.LoadUint64(&localStatusRx),
		TrackUpdates: atomic.LoadUint64(&localTrackUpd),
		DecodeErrors: atomic.LoadUint64(&localDecodeErr),
		CbPanics:     atomic.LoadUint64(&localCbPanics),
		KeepaliveTx:  atomic.LoadUint64(&localKaTx),
		KeepaliveErr: atomic.LoadUint64(&localKaErr),
		Errors:       atomic.LoadUint64(&localErrors),
		TracksActive: atomic.LoadUint64(&localTracksLive),
	}
}

// Wrapper helpers to keep call sites simple.
func IncRadarRx() {
	RadarRxFrames.Inc()
	atomic.AddUint64(&localRadarRx, 1)
}

func IncStatusRx() {
	RadarStatusFrames.Inc()
	atomic.AddUint64(&localStatusRx, 1)
}

func IncTrackUpdate() {
	TrackUpdates.Inc()
	atomic.AddUint64(&localTrackUpd, 1)
}

func IncDecodeError() {
	DecodeErrors.Inc()
	atomic.AddUint64(&localDecodeErr, 1)
}

func IncCallbackPanic() {
	CallbackPanics.Inc()
	atomic.AddUint64(&localCbPanics, 1)
}

func IncKeepaliveTx() {
	KeepaliveTxFrames.Inc()
	atomic.AddUint64(&localKaTx, 1)
}

func IncKeepaliveError() {
	KeepaliveErrors.Inc()
	atomic.AddUint64(&localKaErr, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// SetTracksActive records the cache population at the last snapshot.
func SetTracksActive(n int) {
	TracksActive.Set(float64(n))
	atomic.StoreUint64(&localTracksLive, uint64(n))
}

// InitBuildInfo sets the build info gauge (call once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrRadarRead, ErrCarWrite, ErrCarOverflow,
		ErrSLCANWrite, ErrSLCANRead, ErrSetup,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// StartHTTP serves Prometheus metrics at /metrics plus a /ready probe.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// SetReadinessFunc registers the function backing /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // not set yet: treat as ready so the endpoint doesn't flap
		return true
	}
	return fn()
}
