package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kamilk/go-radar-driver/internal/metrics"
	"github.com/kamilk/go-radar-driver/internal/radar"
)

// startSummaryLogger periodically logs driver and counter state, the Go
// rendition of the Python scripts' ten-second status banners.
func startSummaryLogger(ctx context.Context, d *radar.Driver, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				attrs := []any{
					"tracks_cached", len(d.Tracks()),
					"rx_messages", d.MessageCount(),
					"radar_status", d.StatusCount(),
					"track_updates", snap.TrackUpdates,
					"decode_errors", snap.DecodeErrors,
				}
				if st := d.KeepaliveStatus(); st != nil {
					attrs = append(attrs, "keepalive_tx", st.TxCount)
					if st.LastError != "" {
						attrs = append(attrs, "keepalive_error", st.LastError)
					}
				}
				l.Info("radar_summary", attrs...)
			case <-ctx.Done():
				return
			}
		}
	}()
}
