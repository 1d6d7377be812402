package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	radarChannel    string
	carChannel      string
	iface           string
	radarIface      string
	carIface        string
	bitrate         int
	serialBaud      int
	vehicle         string
	keepaliveRateHz float64
	noKeepalive     bool
	trackTimeout    time.Duration
	notifierTO      time.Duration
	noSetup         bool
	useSudo         bool
	setupExtra      stringList
	printInterval   time.Duration
	summaryInterval time.Duration
	logFormat       string
	logLevel        string
	metricsAddr     string
	mdnsEnable      bool
	mdnsName        string
}

// stringList implements flag.Value for repeatable tokens.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, " ") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	flag.StringVar(&cfg.radarChannel, "radar-channel", "can1", "Radar CAN channel")
	flag.StringVar(&cfg.carChannel, "car-channel", "can0", "Car CAN channel")
	flag.StringVar(&cfg.iface, "interface", "socketcan", "Transport for both channels: socketcan|slcan")
	flag.StringVar(&cfg.radarIface, "radar-interface", "", "Transport override for the radar channel")
	flag.StringVar(&cfg.carIface, "car-interface", "", "Transport override for the car channel")
	flag.IntVar(&cfg.bitrate, "bitrate", 500000, "CAN bitrate")
	flag.IntVar(&cfg.serialBaud, "serial-baud", 115200, "Serial baud rate (slcan transport)")
	flag.StringVar(&cfg.vehicle, "vehicle", "toyota_tssp", "Vehicle profile: toyota_tssp|toyota_tss2")
	flag.Float64Var(&cfg.keepaliveRateHz, "keepalive-rate-hz", 100, "Keepalive loop frequency")
	flag.BoolVar(&cfg.noKeepalive, "no-keepalive", false, "Disable the keepalive loop")
	flag.DurationVar(&cfg.trackTimeout, "track-timeout", 500*time.Millisecond, "Stale track eviction age")
	flag.DurationVar(&cfg.notifierTO, "notifier-timeout", 100*time.Millisecond, "Receive poll timeout")
	flag.BoolVar(&cfg.noSetup, "no-setup", false, "Skip bringing interfaces up with ip link")
	flag.BoolVar(&cfg.useSudo, "use-sudo", false, "Run interface setup commands with sudo")
	flag.Var(&cfg.setupExtra, "setup-extra", "Extra tokens to prefix ip link commands (repeatable)")
	flag.DurationVar(&cfg.printInterval, "print-interval", 250*time.Millisecond, "Minimum delay between prints for the same track")
	flag.DurationVar(&cfg.summaryInterval, "summary-interval", 5*time.Second, "Delay between summary statistics logs")
	flag.StringVar(&cfg.logFormat, "log-format", "text", "Log format: text|json")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	flag.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	flag.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "Advertise the metrics endpoint via mDNS")
	flag.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default radar-logger-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Flags explicitly set take precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate checks binary-level options only; channel/rate/timeout semantics
// are validated by the driver's own config.
func (c *appConfig) validate() error {
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.printInterval < 0 {
		return fmt.Errorf("print-interval must be >= 0")
	}
	if c.summaryInterval <= 0 {
		return fmt.Errorf("summary-interval must be > 0")
	}
	return nil
}

// applyEnvOverrides maps RADAR_LOGGER_* environment variables to config
// fields unless the corresponding flag was explicitly set.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	str := func(flagName, env string, dst *string) {
		if _, ok := set[flagName]; ok {
			return
		}
		if v, ok := get(env); ok && v != "" {
			*dst = v
		}
	}
	str("radar-channel", "RADAR_LOGGER_RADAR_CHANNEL", &c.radarChannel)
	str("car-channel", "RADAR_LOGGER_CAR_CHANNEL", &c.carChannel)
	str("interface", "RADAR_LOGGER_INTERFACE", &c.iface)
	str("vehicle", "RADAR_LOGGER_VEHICLE", &c.vehicle)
	str("log-format", "RADAR_LOGGER_LOG_FORMAT", &c.logFormat)
	str("log-level", "RADAR_LOGGER_LOG_LEVEL", &c.logLevel)
	str("mdns-name", "RADAR_LOGGER_MDNS_NAME", &c.mdnsName)
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("RADAR_LOGGER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["bitrate"]; !ok {
		if v, ok := get("RADAR_LOGGER_BITRATE"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.bitrate = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid RADAR_LOGGER_BITRATE: %w", err)
			}
		}
	}
	if _, ok := set["track-timeout"]; !ok {
		if v, ok := get("RADAR_LOGGER_TRACK_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.trackTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid RADAR_LOGGER_TRACK_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["no-keepalive"]; !ok {
		if v, ok := get("RADAR_LOGGER_NO_KEEPALIVE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.noKeepalive = true
			case "0", "false", "no", "off":
				c.noKeepalive = false
			}
		}
	}
	return firstErr
}
