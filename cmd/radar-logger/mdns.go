package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const mdnsServiceType = "_radar-metrics._tcp"

// startMDNS advertises the metrics endpoint via mDNS and returns a cleanup
// function. No-op when disabled.
func startMDNS(ctx context.Context, cfg *appConfig, port int) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	instance := cfg.mdnsName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("radar-logger-%s", host)
	}
	meta := []string{
		"vehicle=" + cfg.vehicle,
		"version=" + version,
		"commit=" + commit,
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
		// Give the goodbye packets a moment to leave.
		time.Sleep(50 * time.Millisecond)
	}()
	return func() { once.Do(func() { close(done) }) }, nil
}
