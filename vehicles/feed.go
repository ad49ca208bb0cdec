// Package vehicles maintains the authoritative vehicle-position feed and
// reconciles it with the timetable-derived estimates.
package vehicles

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ruterlive/ruterlive/estimate"
	"github.com/ruterlive/ruterlive/geo"
	"github.com/ruterlive/ruterlive/mode"
	"github.com/ruterlive/ruterlive/upstream"
)

// Cache holds the latest authoritative vehicle list from the realtime
// GraphQL feed. Expired data is served immediately while one background
// refresh revalidates; positions 20 seconds old are still far better than
// an empty map.
type Cache struct {
	up   *upstream.Client
	url  string
	bbox geo.BBox
	ttl  time.Duration

	sf singleflight.Group

	mu        sync.RWMutex
	data      []estimate.Vehicle
	fetchedAt time.Time
}

func NewCache(up *upstream.Client, url string, bbox geo.BBox, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 20 * time.Second
	}
	return &Cache{up: up, url: url, bbox: bbox, ttl: ttl}
}

type feedVehicle struct {
	VehicleID   string `json:"vehicleId"`
	LastUpdated string `json:"lastUpdated"`
	Location    *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Line *struct {
		PublicCode string `json:"publicCode"`
	} `json:"line"`
	Mode            string   `json:"mode"`
	Bearing         *float64 `json:"bearing"`
	DestinationName string   `json:"destinationName"`
}

type feedResponse struct {
	Data *struct {
		Vehicles []feedVehicle `json:"vehicles"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Vehicles returns the cached authoritative list, refreshing past TTL.
// With a stale list available the refresh happens in the background and the
// stale list is returned at once.
func (c *Cache) Vehicles(ctx context.Context) ([]estimate.Vehicle, error) {
	c.mu.RLock()
	data, fetchedAt := c.data, c.fetchedAt
	c.mu.RUnlock()

	if !fetchedAt.IsZero() && time.Since(fetchedAt) <= c.ttl {
		return data, nil
	}
	if !fetchedAt.IsZero() {
		go func() {
			if _, err, _ := c.sf.Do("vehicles", func() (any, error) {
				return nil, c.refresh(context.WithoutCancel(ctx))
			}); err != nil {
				log.Printf("vehicle feed refresh: %v", err)
			}
		}()
		return data, nil
	}

	if _, err, _ := c.sf.Do("vehicles", func() (any, error) {
		return nil, c.refresh(ctx)
	}); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data, nil
}

func (c *Cache) refresh(ctx context.Context) error {
	q := fmt.Sprintf(`{
  vehicles(boundingBox: { minLat: %g, maxLat: %g, minLon: %g, maxLon: %g }) {
    vehicleId
    lastUpdated
    location { latitude longitude }
    line { publicCode }
    mode
    bearing
    destinationName
  }
}`, c.bbox.MinLat, c.bbox.MaxLat, c.bbox.MinLon, c.bbox.MaxLon)

	body, err := json.Marshal(map[string]string{"query": q})
	if err != nil {
		return err
	}
	resp, err := c.up.PostJSON(ctx, c.url, body, upstream.Options{Timeout: 15 * time.Second, Retries: 2})
	if err != nil {
		return fmt.Errorf("fetch vehicles: %w", err)
	}
	if _, err := upstream.RequireOK(c.url, resp); err != nil {
		return err
	}

	var fr feedResponse
	if err := json.Unmarshal(resp.Body, &fr); err != nil {
		return fmt.Errorf("decode vehicles: %w", err)
	}
	if len(fr.Errors) > 0 {
		return fmt.Errorf("vehicles feed: %s", fr.Errors[0].Message)
	}
	if fr.Data == nil {
		return fmt.Errorf("vehicles feed: empty data")
	}

	out := make([]estimate.Vehicle, 0, len(fr.Data.Vehicles))
	for _, fv := range fr.Data.Vehicles {
		if v, ok := convertFeedVehicle(fv); ok {
			out = append(out, v)
		}
	}
	c.mu.Lock()
	c.data = out
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// convertFeedVehicle maps a feed record onto the serving model. Records
// without an id or position are useless and dropped.
func convertFeedVehicle(fv feedVehicle) (estimate.Vehicle, bool) {
	if fv.VehicleID == "" || fv.Location == nil {
		return estimate.Vehicle{}, false
	}
	v := estimate.Vehicle{
		VehicleID: fv.VehicleID,
		Location: estimate.Location{
			Latitude:  fv.Location.Latitude,
			Longitude: fv.Location.Longitude,
		},
		Bearing:         fv.Bearing,
		DestinationName: fv.DestinationName,
	}
	if fv.Line != nil {
		v.Line.PublicCode = fv.Line.PublicCode
	}
	m := mode.ParseAuthoritative(fv.Mode)
	if m == mode.Unknown {
		return estimate.Vehicle{}, false
	}
	v.Mode = mode.Refine(m, v.Line.PublicCode, fv.DestinationName)
	return v, true
}
