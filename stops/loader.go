package stops

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ruterlive/ruterlive/geo"
	"github.com/ruterlive/ruterlive/upstream"
)

// The aggregated dataset is refreshed daily; staying just under 24h keeps us
// off Entur's download rate limit.
const downloadTimeout = 120 * time.Second

var quayIDRe = regexp.MustCompile(`^NSR:Quay:\d+$`)

// Loader downloads the GTFS basic zip and builds a QuayIndex from stops.txt.
// Concurrent callers share one download; a failed refresh keeps serving the
// previous index.
type Loader struct {
	up   *upstream.Client
	url  string
	bbox geo.BBox
	ttl  time.Duration

	sf singleflight.Group

	mu       sync.RWMutex
	idx      *QuayIndex
	loadedAt time.Time
}

func NewLoader(up *upstream.Client, url string, bbox geo.BBox, ttl time.Duration) *Loader {
	if ttl <= 0 {
		ttl = 23 * time.Hour
	}
	return &Loader{up: up, url: url, bbox: bbox, ttl: ttl}
}

// Index returns the current quay index, downloading the dataset if the cached
// one is missing or past TTL. On refresh failure a stale index is returned
// rather than an error.
func (l *Loader) Index(ctx context.Context) (*QuayIndex, error) {
	l.mu.RLock()
	idx, fresh := l.idx, time.Since(l.loadedAt) < l.ttl
	l.mu.RUnlock()
	if idx != nil && fresh {
		return idx, nil
	}

	v, err, _ := l.sf.Do("gtfs", func() (any, error) {
		return l.load(ctx)
	})
	if err != nil {
		l.mu.RLock()
		stale := l.idx
		l.mu.RUnlock()
		if stale != nil {
			log.Printf("gtfs stops refresh failed, serving stale index: %v", err)
			return stale, nil
		}
		return nil, err
	}
	return v.(*QuayIndex), nil
}

func (l *Loader) load(ctx context.Context) (*QuayIndex, error) {
	resp, err := l.up.Get(ctx, l.url, upstream.Options{Timeout: downloadTimeout, Retries: 2})
	if err != nil {
		return nil, fmt.Errorf("download gtfs: %w", err)
	}
	if _, err := upstream.RequireOK(l.url, resp); err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(resp.Body), int64(len(resp.Body)))
	if err != nil {
		return nil, fmt.Errorf("open gtfs zip: %w", err)
	}
	var stopsFile *zip.File
	for _, f := range zr.File {
		if f.Name == "stops.txt" {
			stopsFile = f
			break
		}
	}
	if stopsFile == nil {
		return nil, errors.New("gtfs zip has no stops.txt")
	}

	rc, err := stopsFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open stops.txt: %w", err)
	}
	defer rc.Close()

	quays, err := parseStops(rc, l.bbox)
	if err != nil {
		return nil, err
	}
	idx := NewQuayIndex(quays)

	l.mu.Lock()
	l.idx = idx
	l.loadedAt = time.Now()
	l.mu.Unlock()
	log.Printf("gtfs stops: %d quays indexed", idx.Len())
	return idx, nil
}

// parseStops reads stops.txt, keeping NSR quay rows inside the bounding box.
// Rows with missing or unparseable fields are skipped.
func parseStops(r io.Reader, bbox geo.BBox) ([]Quay, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read stops.txt header: %w", err)
	}
	idIdx, nameIdx, latIdx, lonIdx := -1, -1, -1, -1
	for i, col := range header {
		switch col {
		case "stop_id":
			idIdx = i
		case "stop_name":
			nameIdx = i
		case "stop_lat":
			latIdx = i
		case "stop_lon":
			lonIdx = i
		}
	}
	if idIdx < 0 || latIdx < 0 || lonIdx < 0 {
		return nil, errors.New("stops.txt missing required columns")
	}

	var quays []Quay
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if idIdx >= len(rec) || latIdx >= len(rec) || lonIdx >= len(rec) {
			continue
		}
		id := rec[idIdx]
		if !quayIDRe.MatchString(id) {
			continue
		}
		lat, err := strconv.ParseFloat(rec[latIdx], 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(rec[lonIdx], 64)
		if err != nil {
			continue
		}
		pos := geo.LatLon{Lat: lat, Lon: lon}
		if !bbox.Contains(pos) {
			continue
		}
		name := ""
		if nameIdx >= 0 && nameIdx < len(rec) {
			name = rec[nameIdx]
		}
		quays = append(quays, Quay{ID: id, Name: name, Pos: pos})
	}
	return quays, nil
}
