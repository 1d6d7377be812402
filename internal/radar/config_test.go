package radar

import (
	"errors"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	c := Config{RadarChannel: "can0", CarChannel: "can1"}.withDefaults()
	if c.Interface != TransportSocketCAN {
		t.Fatalf("default interface: %q", c.Interface)
	}
	if c.Bitrate != 500000 || c.SerialBaud != 115200 {
		t.Fatalf("default rates: bitrate=%d baud=%d", c.Bitrate, c.SerialBaud)
	}
	if c.Vehicle != "toyota_tssp" {
		t.Fatalf("default vehicle: %q", c.Vehicle)
	}
	if c.NotifierTimeout != 100*time.Millisecond {
		t.Fatalf("default notifier timeout: %v", c.NotifierTimeout)
	}
	if err := c.validate(); err != nil {
		t.Fatalf("defaulted config must validate: %v", err)
	}
}

func TestInterfaceOverrides(t *testing.T) {
	c := Config{Interface: TransportSocketCAN, CarInterface: TransportSLCAN}
	if c.radarInterface() != TransportSocketCAN {
		t.Fatalf("radar interface should fall back to the shared kind")
	}
	if c.carInterface() != TransportSLCAN {
		t.Fatalf("car interface override should win")
	}
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing radar channel", func(c *Config) { c.RadarChannel = "" }},
		{"missing car channel", func(c *Config) { c.CarChannel = "" }},
		{"unknown interface", func(c *Config) { c.Interface = "spi" }},
		{"unknown radar interface", func(c *Config) { c.RadarInterface = "bogus" }},
		{"negative bitrate", func(c *Config) { c.Bitrate = -1 }},
		{"negative baud", func(c *Config) { c.SerialBaud = -9600 }},
		{"keepalive without rate", func(c *Config) { c.KeepaliveEnabled = true; c.KeepaliveRateHz = 0 }},
		{"negative track timeout", func(c *Config) { c.TrackTimeout = -time.Second }},
		{"negative notifier timeout", func(c *Config) { c.NotifierTimeout = -time.Millisecond }},
		{"unknown vehicle", func(c *Config) { c.Vehicle = "honda_nidec" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Config{RadarChannel: "can0", CarChannel: "can1"}.withDefaults()
			tc.mutate(&c)
			err := c.validate()
			if err == nil {
				t.Fatalf("expected validation failure")
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigError, got %T: %v", err, err)
			}
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{})
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigError from New, got %v", err)
	}
}

func TestZeroTrackTimeoutIsLegal(t *testing.T) {
	c := Config{RadarChannel: "can0", CarChannel: "can1", TrackTimeout: 0}.withDefaults()
	if err := c.validate(); err != nil {
		t.Fatalf("zero timeout must be accepted: %v", err)
	}
}

func TestDriverErrorStepMatching(t *testing.T) {
	inner := errors.New("device missing")
	err := error(&DriverError{Step: ErrOpenBus, Err: inner})
	if !errors.Is(err, ErrOpenBus) {
		t.Fatalf("step must match via errors.Is")
	}
	if errors.Is(err, ErrSetup) || errors.Is(err, ErrLoadCodec) {
		t.Fatalf("unrelated steps must not match")
	}
	if !errors.Is(err, inner) {
		t.Fatalf("cause must unwrap")
	}
}
