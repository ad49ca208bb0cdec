// Package timetable maintains the shared SIRI ET snapshot. Every consumer
// reads the same snapshot, so the upstream feed is hit once per refresh no
// matter how many requests arrive.
package timetable

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ruterlive/ruterlive/siri"
	"github.com/ruterlive/ruterlive/upstream"
)

// ErrNoSnapshot means no fetch has ever succeeded. Once one has, consumers
// always get a snapshot, possibly stale.
var ErrNoSnapshot = errors.New("no timetable snapshot available")

// Snapshot is one parsed ET document.
type Snapshot struct {
	Journeys  []siri.Journey
	FetchedAt time.Time
}

// Age reports how old the snapshot is.
func (s *Snapshot) Age() time.Duration { return time.Since(s.FetchedAt) }

// SnapshotCache fetches and parses the ET feed with TTL-based reuse.
// Concurrent refreshes coalesce into one upstream call; refresh failures
// serve the previous snapshot. A 429 from upstream opens a cooldown window
// during which the background poller stays quiet.
type SnapshotCache struct {
	up       *upstream.Client
	url      string
	ttl      time.Duration
	cooldown time.Duration

	sf singleflight.Group

	mu            sync.RWMutex
	snap          *Snapshot
	cooldownUntil time.Time
}

func NewSnapshotCache(up *upstream.Client, url string, ttl, cooldown time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	return &SnapshotCache{up: up, url: url, ttl: ttl, cooldown: cooldown}
}

// Snapshot returns the current snapshot, refreshing if past TTL. When the
// refresh fails and a previous snapshot exists, that snapshot is returned
// with a nil error; ErrNoSnapshot or the fetch error only surface before the
// first success.
func (c *SnapshotCache) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	if snap != nil && snap.Age() <= c.ttl {
		return snap, nil
	}

	v, err, _ := c.sf.Do("et", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		c.mu.RLock()
		stale := c.snap
		c.mu.RUnlock()
		if stale != nil {
			log.Printf("timetable refresh failed, serving stale snapshot: %v", err)
			return stale, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrNoSnapshot, err)
	}
	return v.(*Snapshot), nil
}

// Current returns the latest snapshot without refreshing, or nil.
func (c *SnapshotCache) Current() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *SnapshotCache) refresh(ctx context.Context) (*Snapshot, error) {
	resp, err := c.up.Get(ctx, c.url, upstream.Options{Timeout: 60 * time.Second, Retries: 2})
	if err != nil {
		return nil, fmt.Errorf("fetch timetable: %w", err)
	}
	if resp.StatusCode == 429 {
		c.mu.Lock()
		c.cooldownUntil = time.Now().Add(c.cooldown)
		c.mu.Unlock()
		return nil, fmt.Errorf("timetable rate limited, backing off %s", c.cooldown)
	}
	if _, err := upstream.RequireOK(c.url, resp); err != nil {
		return nil, err
	}

	journeys, err := siri.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse timetable: %w", err)
	}
	snap := &Snapshot{Journeys: journeys, FetchedAt: time.Now()}
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	return snap, nil
}

func (c *SnapshotCache) inCooldown() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Before(c.cooldownUntil)
}

// Start runs the background refresh loop until ctx is cancelled. Scheduled
// refreshes are skipped while a rate-limit cooldown is open; on-demand calls
// through Snapshot still attempt.
func (c *SnapshotCache) Start(ctx context.Context) {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	if _, err := c.Snapshot(ctx); err != nil {
		log.Printf("initial timetable fetch: %v", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.inCooldown() {
				continue
			}
			if _, err, _ := c.sf.Do("et", func() (any, error) { return c.refresh(ctx) }); err != nil {
				log.Printf("timetable refresh: %v", err)
			}
		}
	}
}
