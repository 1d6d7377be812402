package radar

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kamilk/go-radar-driver/internal/codec"
	"github.com/kamilk/go-radar-driver/internal/vehicles"
)

// Transport kinds accepted by the Interface selectors.
const (
	TransportSocketCAN = "socketcan"
	TransportSLCAN     = "slcan"
)

// Config holds the driver's validated settings. Construct it, hand it to
// New, and do not mutate it afterwards.
type Config struct {
	RadarChannel string // channel the radar is wired to
	CarChannel   string // channel facing the car / powertrain bus

	// Interface selects the transport kind for both channels; the
	// per-channel overrides win when set.
	Interface      string
	RadarInterface string
	CarInterface   string

	Bitrate    int
	SerialBaud int // slcan transport only

	// Vehicle names the profile supplying frame tables, the track window
	// and the signal databases. RadarDB/ControlDB override the profile's
	// databases when set.
	Vehicle   string
	RadarDB   codec.Loader
	ControlDB codec.Loader

	KeepaliveRateHz  float64
	KeepaliveEnabled bool
	TrackTimeout     time.Duration
	NotifierTimeout  time.Duration // receive poll granularity

	AutoSetup      bool // bring channels up via ip link before opening
	UseSudo        bool
	SetupExtraArgs []string

	Log *slog.Logger
}

const (
	defaultInterface  = TransportSocketCAN
	defaultBitrate    = 500000
	defaultSerialBaud = 115200
	defaultVehicle    = "toyota_tssp"
	defaultNotifierTO = 100 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.Interface == "" {
		c.Interface = defaultInterface
	}
	if c.Bitrate == 0 {
		c.Bitrate = defaultBitrate
	}
	if c.SerialBaud == 0 {
		c.SerialBaud = defaultSerialBaud
	}
	if c.Vehicle == "" {
		c.Vehicle = defaultVehicle
	}
	if c.NotifierTimeout == 0 {
		c.NotifierTimeout = defaultNotifierTO
	}
	return c
}

func (c Config) radarInterface() string {
	if c.RadarInterface != "" {
		return c.RadarInterface
	}
	return c.Interface
}

func (c Config) carInterface() string {
	if c.CarInterface != "" {
		return c.CarInterface
	}
	return c.Interface
}

// validate runs after withDefaults; any failure aborts construction.
func (c Config) validate() error {
	if c.RadarChannel == "" {
		return &ConfigError{Reason: "radar channel must be set"}
	}
	if c.CarChannel == "" {
		return &ConfigError{Reason: "car channel must be set"}
	}
	for _, kind := range []string{c.radarInterface(), c.carInterface()} {
		switch kind {
		case TransportSocketCAN, TransportSLCAN:
		default:
			return &ConfigError{Reason: fmt.Sprintf("unknown interface kind %q", kind)}
		}
	}
	if c.Bitrate <= 0 {
		return &ConfigError{Reason: fmt.Sprintf("bitrate must be > 0 (got %d)", c.Bitrate)}
	}
	if c.SerialBaud <= 0 {
		return &ConfigError{Reason: fmt.Sprintf("serial baud must be > 0 (got %d)", c.SerialBaud)}
	}
	if c.KeepaliveEnabled && c.KeepaliveRateHz <= 0 {
		return &ConfigError{Reason: fmt.Sprintf("keepalive rate must be > 0 Hz (got %v)", c.KeepaliveRateHz)}
	}
	if c.TrackTimeout < 0 {
		return &ConfigError{Reason: "track timeout must be >= 0"}
	}
	if c.NotifierTimeout <= 0 {
		return &ConfigError{Reason: "notifier timeout must be > 0"}
	}
	if _, ok := vehicles.Lookup(c.Vehicle); !ok {
		return &ConfigError{Reason: fmt.Sprintf("unknown vehicle profile %q", c.Vehicle)}
	}
	return nil
}
