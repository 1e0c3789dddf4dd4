package gtfsimport

import (
	"cmp"
	"slices"

	"github.com/arknettransit/dutyplan/internal/schedule"
	"github.com/arknettransit/dutyplan/internal/timespan"
)

// BlockGroup is the set of feed trips sharing a block_id under one service.
type BlockGroup struct {
	// ID is the block_id, suffixed with ":<service_id>" when the feed
	// reuses the block_id under several services.
	ID        string
	FeedID    string
	RouteID   string
	ServiceID string
	Trips     []schedule.Trip
}

// Header returns the header the block is composed under.
func (g BlockGroup) Header(countryID string) schedule.Header {
	return schedule.Header{ID: g.ID, CountryID: countryID, RouteID: g.RouteID, ServiceID: g.ServiceID}
}

// GroupBlocks groups trips by (block_id, service_id). blockIDs maps trip ID
// to block_id; trips without an entry are not grouped. Each group's trips
// are ordered by start time and the group takes the route of its first trip.
func GroupBlocks(trips []schedule.Trip, blockIDs map[string]string) []BlockGroup {
	type key struct{ block, service string }

	groups := make(map[key][]schedule.Trip)
	services := make(map[string]map[string]bool)
	for _, t := range trips {
		b, ok := blockIDs[t.ID]
		if !ok {
			continue
		}
		k := key{b, t.ServiceID}
		groups[k] = append(groups[k], t)
		if services[b] == nil {
			services[b] = make(map[string]bool)
		}
		services[b][t.ServiceID] = true
	}

	out := make([]BlockGroup, 0, len(groups))
	for k, ts := range groups {
		slices.SortFunc(ts, func(a, b schedule.Trip) int {
			return cmp.Or(cmp.Compare(a.StartTime, b.StartTime), cmp.Compare(a.ID, b.ID))
		})
		id := k.block
		if len(services[k.block]) > 1 {
			id = k.block + ":" + k.service
		}
		out = append(out, BlockGroup{
			ID:        id,
			FeedID:    k.block,
			RouteID:   ts[0].RouteID,
			ServiceID: k.service,
			Trips:     ts,
		})
	}
	slices.SortFunc(out, func(a, b BlockGroup) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Legs places ordered trips into legs. Each layover is the idle time until
// the next trip departs, after recovery, in whole minutes and capped at
// schedule.MaxLayoverMinutes. Trips that overlap get no layover and are
// left for the composer to reject.
func Legs(trips []schedule.Trip) []schedule.Leg {
	legs := make([]schedule.Leg, len(trips))
	for i, t := range trips {
		legs[i] = schedule.Leg{Trip: t}
		if i == len(trips)-1 {
			continue
		}
		gap := trips[i+1].StartTime - t.End() - t.Recovery
		if gap <= 0 {
			continue
		}
		legs[i].LayoverMinutes = min(int(gap/timespan.Minute), schedule.MaxLayoverMinutes)
	}
	return legs
}
