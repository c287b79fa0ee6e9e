package cache

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner is any cache that can drop its expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically sweeps expired entries out of registered caches.
type Janitor struct {
	caches   []Cleaner
	interval time.Duration
}

func NewJanitor(interval time.Duration, caches ...Cleaner) *Janitor {
	return &Janitor{caches: caches, interval: interval}
}

// Run sweeps until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleaned := 0
			for _, c := range j.caches {
				cleaned += c.CleanExpired()
			}
			if cleaned > 0 {
				slog.DebugContext(ctx, "Cache sweep removed expired entries", "count", cleaned)
			}
		}
	}
}
