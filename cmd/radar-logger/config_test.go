package main

import (
	"testing"
	"time"
)

func defaultAppConfig() *appConfig {
	return &appConfig{
		radarChannel:    "can1",
		carChannel:      "can0",
		iface:           "socketcan",
		bitrate:         500000,
		serialBaud:      115200,
		vehicle:         "toyota_tssp",
		keepaliveRateHz: 100,
		trackTimeout:    500 * time.Millisecond,
		notifierTO:      100 * time.Millisecond,
		printInterval:   250 * time.Millisecond,
		summaryInterval: 5 * time.Second,
		logFormat:       "text",
		logLevel:        "info",
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := defaultAppConfig().validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateRejectsBadOptions(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*appConfig)
	}{
		{"bad log format", func(c *appConfig) { c.logFormat = "xml" }},
		{"bad log level", func(c *appConfig) { c.logLevel = "verbose" }},
		{"negative print interval", func(c *appConfig) { c.printInterval = -time.Second }},
		{"zero summary interval", func(c *appConfig) { c.summaryInterval = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := defaultAppConfig()
			tc.mutate(c)
			if err := c.validate(); err == nil {
				t.Fatalf("expected validation failure")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RADAR_LOGGER_RADAR_CHANNEL", "can3")
	t.Setenv("RADAR_LOGGER_VEHICLE", "toyota_tss2")
	t.Setenv("RADAR_LOGGER_BITRATE", "250000")
	t.Setenv("RADAR_LOGGER_TRACK_TIMEOUT", "750ms")
	t.Setenv("RADAR_LOGGER_NO_KEEPALIVE", "yes")
	t.Setenv("RADAR_LOGGER_METRICS", ":9100")

	c := defaultAppConfig()
	if err := applyEnvOverrides(c, map[string]struct{}{}); err != nil {
		t.Fatalf("applyEnvOverrides: %v", err)
	}
	if c.radarChannel != "can3" || c.vehicle != "toyota_tss2" {
		t.Fatalf("string overrides not applied: %+v", c)
	}
	if c.bitrate != 250000 {
		t.Fatalf("bitrate override: %d", c.bitrate)
	}
	if c.trackTimeout != 750*time.Millisecond {
		t.Fatalf("track timeout override: %v", c.trackTimeout)
	}
	if !c.noKeepalive {
		t.Fatalf("keepalive toggle not applied")
	}
	if c.metricsAddr != ":9100" {
		t.Fatalf("metrics override: %q", c.metricsAddr)
	}
}

func TestExplicitFlagsBeatEnv(t *testing.T) {
	t.Setenv("RADAR_LOGGER_RADAR_CHANNEL", "can9")
	t.Setenv("RADAR_LOGGER_BITRATE", "125000")

	c := defaultAppConfig()
	set := map[string]struct{}{"radar-channel": {}, "bitrate": {}}
	if err := applyEnvOverrides(c, set); err != nil {
		t.Fatalf("applyEnvOverrides: %v", err)
	}
	if c.radarChannel != "can1" || c.bitrate != 500000 {
		t.Fatalf("explicitly set flags must win over env: %+v", c)
	}
}

func TestEnvOverrideErrors(t *testing.T) {
	t.Setenv("RADAR_LOGGER_BITRATE", "fast")
	c := defaultAppConfig()
	if err := applyEnvOverrides(c, map[string]struct{}{}); err == nil {
		t.Fatalf("malformed numeric env must error")
	}

	t.Setenv("RADAR_LOGGER_BITRATE", "500000")
	t.Setenv("RADAR_LOGGER_TRACK_TIMEOUT", "soon")
	c = defaultAppConfig()
	if err := applyEnvOverrides(c, map[string]struct{}{}); err == nil {
		t.Fatalf("malformed duration env must error")
	}
}

func TestStringListAccumulates(t *testing.T) {
	var l stringList
	_ = l.Set("env")
	_ = l.Set("PATH=/sbin")
	if len(l) != 2 || l.String() != "env PATH=/sbin" {
		t.Fatalf("stringList: %v", l)
	}
}
