package stops

import (
	"context"
	"log"

	"github.com/bluele/gcache"

	"github.com/ruterlive/ruterlive/geo"
)

// CoordLookup resolves quay IDs the GTFS dataset lacks. Implemented by the
// journey-planner client.
type CoordLookup interface {
	QuayCoords(ctx context.Context, quayIDs []string) (map[string]geo.LatLon, error)
}

// Resolver answers quay coordinate queries from the GTFS index first, then
// the journey planner. Planner answers are cached; quay positions do not
// move within a process lifetime.
type Resolver struct {
	loader *Loader
	lookup CoordLookup
	cache  gcache.Cache
}

func NewResolver(loader *Loader, lookup CoordLookup) *Resolver {
	return &Resolver{
		loader: loader,
		lookup: lookup,
		cache:  gcache.New(50000).LRU().Build(),
	}
}

// Resolve maps quay IDs to coordinates. IDs neither source knows are absent
// from the result; lookup failures degrade to whatever the index had.
func (r *Resolver) Resolve(ctx context.Context, quayIDs []string) map[string]geo.LatLon {
	out := make(map[string]geo.LatLon, len(quayIDs))

	idx, err := r.loader.Index(ctx)
	if err != nil {
		log.Printf("quay index unavailable: %v", err)
	}

	var missing []string
	seen := map[string]bool{}
	for _, id := range quayIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if idx != nil {
			if pos, ok := idx.Lookup(id); ok {
				out[id] = pos
				continue
			}
		}
		if v, err := r.cache.Get(id); err == nil {
			out[id] = v.(geo.LatLon)
			continue
		}
		if quayIDRe.MatchString(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 || r.lookup == nil {
		return out
	}

	coords, err := r.lookup.QuayCoords(ctx, missing)
	if err != nil {
		log.Printf("quay coord lookup failed for %d quays: %v", len(missing), err)
		return out
	}
	for id, pos := range coords {
		out[id] = pos
		_ = r.cache.Set(id, pos)
	}
	return out
}
