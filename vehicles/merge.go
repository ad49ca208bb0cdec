package vehicles

import "github.com/ruterlive/ruterlive/estimate"

// Merge reconciles the authoritative feed with the estimator's output.
// Authoritative vehicles always win on position and mode; the estimate only
// contributes its stop-sequence display fields when the authoritative record
// lacks them. Estimated vehicles the feed has not reported pass through
// unchanged. The result has one entry per vehicle id.
func Merge(authoritative, estimated []estimate.Vehicle) []estimate.Vehicle {
	byID := make(map[string]*estimate.Vehicle, len(estimated))
	for i := range estimated {
		byID[estimated[i].VehicleID] = &estimated[i]
	}

	out := make([]estimate.Vehicle, 0, len(authoritative)+len(estimated))
	seen := make(map[string]bool, len(authoritative))
	for _, av := range authoritative {
		if seen[av.VehicleID] {
			continue
		}
		seen[av.VehicleID] = true
		if ev, ok := byID[av.VehicleID]; ok {
			if av.From == nil {
				av.From = ev.From
			}
			if av.To == nil {
				av.To = ev.To
			}
			if av.Via == nil {
				av.Via = ev.Via
			}
			if av.NextStop == nil {
				av.NextStop = ev.NextStop
			}
		}
		out = append(out, av)
	}
	for i := range estimated {
		if !seen[estimated[i].VehicleID] {
			seen[estimated[i].VehicleID] = true
			out = append(out, estimated[i])
		}
	}
	return out
}
