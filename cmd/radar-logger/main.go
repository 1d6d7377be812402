// radar-logger drives a Toyota millimeter-wave radar without its driving
// support unit: it emulates the DSU's bus chatter on the car channel and
// logs the object tracks reported on the radar channel.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/kamilk/go-radar-driver/internal/metrics"
	"github.com/kamilk/go-radar-driver/internal/radar"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("radar-logger %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	driver, err := radar.New(radar.Config{
		RadarChannel:     cfg.radarChannel,
		CarChannel:       cfg.carChannel,
		Interface:        cfg.iface,
		RadarInterface:   cfg.radarIface,
		CarInterface:     cfg.carIface,
		Bitrate:          cfg.bitrate,
		SerialBaud:       cfg.serialBaud,
		Vehicle:          cfg.vehicle,
		KeepaliveRateHz:  cfg.keepaliveRateHz,
		KeepaliveEnabled: !cfg.noKeepalive,
		TrackTimeout:     cfg.trackTimeout,
		NotifierTimeout:  cfg.notifierTO,
		AutoSetup:        !cfg.noSetup,
		UseSudo:          cfg.useSudo,
		SetupExtraArgs:   cfg.setupExtra,
		Log:              l,
	})
	if err != nil {
		l.Error("config_error", "error", err)
		os.Exit(2)
	}
	driver.RegisterTrackCallback(newTrackPrinter(cfg.printInterval, l).callback)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	if err := driver.Start(); err != nil {
		driver.Stop()
		l.Error("driver_start_error", "error", err)
		os.Exit(1)
	}
	l.Info("radar_logger_started", "vehicle", cfg.vehicle)
	startSummaryLogger(ctx, driver, cfg.summaryInterval, l, &wg)

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()

		if port := portOf(cfg.metricsAddr); port > 0 {
			cleanupMDNS, err := startMDNS(ctx, cfg, port)
			if err != nil {
				l.Warn("mdns_start_failed", "error", err)
			} else {
				defer cleanupMDNS()
			}
		}
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	driver.Stop()
	wg.Wait()
}

func portOf(addr string) int {
	if _, p, err := net.SplitHostPort(addr); err == nil {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	return 0
}
