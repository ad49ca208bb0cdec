package mode

import (
	"context"
	"log"
	"sync"

	"github.com/bluele/gcache"
)

// LineModeLookup answers batched "what is this line's declared transport
// mode" queries. Implemented by the journey-planner client.
type LineModeLookup interface {
	LineModes(ctx context.Context, lineRefs []string) (map[string]Mode, error)
}

// Resolver combines the zero-cost numeric-range guess with the authoritative
// journey-planner lookup. Authoritative answers are cached indefinitely by
// line reference; when one exists it always overrides the guess.
type Resolver struct {
	lookup      LineModeLookup
	cache       gcache.Cache
	batchSize   int
	concurrency int
}

func NewResolver(lookup LineModeLookup, batchSize, concurrency int) *Resolver {
	if batchSize <= 0 {
		batchSize = 20
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Resolver{
		lookup:      lookup,
		cache:       gcache.New(10000).LRU().Build(),
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// Resolve returns the authoritative mode for each line reference that has
// one, fetching uncached references in capped batches with bounded
// concurrency. Lookup failures leave references unresolved; callers keep
// their numeric-range guess.
func (r *Resolver) Resolve(ctx context.Context, lineRefs []string) map[string]Mode {
	out := make(map[string]Mode, len(lineRefs))
	var missing []string
	seen := map[string]bool{}
	for _, ref := range lineRefs {
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		if v, err := r.cache.Get(ref); err == nil {
			out[ref] = v.(Mode)
			continue
		}
		missing = append(missing, ref)
	}
	if len(missing) == 0 || r.lookup == nil {
		return out
	}

	var batches [][]string
	for i := 0; i < len(missing); i += r.batchSize {
		end := i + r.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batches = append(batches, missing[i:end])
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, r.concurrency)
	for _, batch := range batches {
		wg.Add(1)
		go func(batch []string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			modes, err := r.lookup.LineModes(ctx, batch)
			if err != nil {
				log.Printf("line mode lookup failed for %d lines: %v", len(batch), err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for ref, m := range modes {
				if m == Unknown {
					continue
				}
				out[ref] = m
				_ = r.cache.Set(ref, m)
			}
		}(batch)
	}
	wg.Wait()
	return out
}
