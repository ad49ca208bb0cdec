// Package stops maintains the quay coordinate index built from Entur's
// aggregated GTFS dataset, with journey-planner lookups as fallback for
// quays the dataset lacks.
package stops

import (
	"strings"

	"github.com/ruterlive/ruterlive/geo"
)

// Quay is one boarding position from the national stop registry.
type Quay struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Pos  geo.LatLon `json:"position"`
}

// QuayIndex is an immutable snapshot of quays. Loaders build a fresh index
// and swap it in whole; readers never see a partial one.
type QuayIndex struct {
	byID map[string]Quay
}

func NewQuayIndex(quays []Quay) *QuayIndex {
	idx := &QuayIndex{byID: make(map[string]Quay, len(quays))}
	for _, q := range quays {
		idx.byID[q.ID] = q
	}
	return idx
}

func (x *QuayIndex) Len() int { return len(x.byID) }

// Lookup returns the coordinate for a quay ID.
func (x *QuayIndex) Lookup(id string) (geo.LatLon, bool) {
	q, ok := x.byID[id]
	return q.Pos, ok
}

// InBBox returns up to limit quays inside the bounding box.
func (x *QuayIndex) InBBox(bbox geo.BBox, limit int) []Quay {
	var out []Quay
	for _, q := range x.byID {
		if !bbox.Contains(q.Pos) {
			continue
		}
		out = append(out, q)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// SearchByName returns up to limit quays whose name contains the query,
// case-insensitively. Queries shorter than two characters match nothing.
func (x *QuayIndex) SearchByName(query string, limit int) []Quay {
	query = strings.ToLower(strings.TrimSpace(query))
	if len(query) < 2 {
		return nil
	}
	var out []Quay
	for _, q := range x.byID {
		if !strings.Contains(strings.ToLower(q.Name), query) {
			continue
		}
		out = append(out, q)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
