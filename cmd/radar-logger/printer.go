package main

import (
	"log/slog"
	"time"

	"github.com/kamilk/go-radar-driver/internal/track"
)

// trackPrinter logs each track's updates at most once per interval. It runs
// on the reception goroutine only, so no locking is needed.
type trackPrinter struct {
	lastPrint map[int]time.Time
	interval  time.Duration
	log       *slog.Logger
}

func newTrackPrinter(interval time.Duration, l *slog.Logger) *trackPrinter {
	if interval < 0 {
		interval = 0
	}
	return &trackPrinter{
		lastPrint: make(map[int]time.Time),
		interval:  interval,
		log:       l,
	}
}

func (p *trackPrinter) callback(tr track.Track) {
	now := time.Now()
	if last, ok := p.lastPrint[tr.ID]; ok && now.Sub(last) < p.interval {
		return
	}
	p.lastPrint[tr.ID] = now
	p.log.Info("track",
		"id", tr.ID,
		"long_m", tr.LongDist,
		"lat_m", tr.LatDist,
		"rel_speed_mps", tr.RelSpeed,
		"new", tr.New,
	)
}
