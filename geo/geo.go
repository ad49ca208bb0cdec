package geo

import (
	"encoding/json"
	"fmt"
	"math"
)

// LatLon is a WGS84 coordinate pair. It serializes as a [lat, lon] array,
// the form the map client and polyline tooling exchange coordinates in.
type LatLon struct {
	Lat float64
	Lon float64
}

func (p LatLon) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Lon})
}

func (p *LatLon) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("coordinate pair: %w", err)
	}
	p.Lat, p.Lon = pair[0], pair[1]
	return nil
}

// BBox is an inclusive geographic bounding box.
type BBox struct {
	MinLat float64 `yaml:"minLat" json:"minLat"`
	MaxLat float64 `yaml:"maxLat" json:"maxLat"`
	MinLon float64 `yaml:"minLon" json:"minLon"`
	MaxLon float64 `yaml:"maxLon" json:"maxLon"`
}

func (b BBox) Contains(p LatLon) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// HaversineKM returns the great-circle distance between two points in kilometers.
func HaversineKM(a, b LatLon) float64 {
	const R = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	la1 := a.Lat * math.Pi / 180
	la2 := b.Lat * math.Pi / 180
	x := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return R * 2 * math.Atan2(math.Sqrt(x), math.Sqrt(1-x))
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Lerp linearly interpolates between a and b. t is expected to be in [0, 1].
func Lerp(a, b LatLon, t float64) LatLon {
	return LatLon{
		Lat: a.Lat + t*(b.Lat-a.Lat),
		Lon: a.Lon + t*(b.Lon-a.Lon),
	}
}
