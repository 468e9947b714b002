package dock

import (
	"time"

	"github.com/r2northstar/startrek/pkg/ship"
)

// MaxInFlightArrivals bounds ArrivalHall memory: once more SNs than
// this are mid-reassembly, the oldest (by first-seen time) is evicted
// to make room, per spec.md's recommendation for an unbounded SN space.
const MaxInFlightArrivals = 1024

// ArrivalHall reassembles inbound fragments into complete Arrivals,
// keyed by SN.
type ArrivalHall struct {
	arrivals  map[ship.ID]ship.Arrival
	firstSeen map[ship.ID]time.Time
}

func newArrivalHall() *ArrivalHall {
	return &ArrivalHall{
		arrivals:  make(map[ship.ID]ship.Arrival),
		firstSeen: make(map[ship.ID]time.Time),
	}
}

// assembleArrival merges income into any in-progress reassembly for
// its SN. It returns the completed Arrival and true once no more
// fragments are needed (including the single-fragment case), or
// (nil, false) while more fragments are still pending or the income
// has already expired.
func (h *ArrivalHall) assembleArrival(now time.Time, income ship.Arrival) (ship.Arrival, bool) {
	if income.Status(now) == ship.ArrivalExpired {
		return nil, false
	}

	sn := income.SN()
	stored, ok := h.arrivals[sn]
	if !ok {
		h.evictIfFull(now)
		completed := income.Assemble(income)
		if completed == nil {
			h.arrivals[sn] = income
			h.firstSeen[sn] = now
			return nil, false
		}
		return completed, true
	}

	completed := stored.Assemble(income)
	if completed == nil {
		return nil, false
	}
	delete(h.arrivals, sn)
	delete(h.firstSeen, sn)
	return completed, true
}

func (h *ArrivalHall) evictIfFull(now time.Time) {
	if len(h.arrivals) < MaxInFlightArrivals {
		return
	}
	var oldestSN ship.ID
	var oldestTime time.Time
	first := true
	for sn, t := range h.firstSeen {
		if first || t.Before(oldestTime) {
			oldestSN, oldestTime, first = sn, t, false
		}
	}
	if !first {
		delete(h.arrivals, oldestSN)
		delete(h.firstSeen, oldestSN)
	}
}

// purge drops any in-progress Arrival whose first-seen time is older
// than window.
func (h *ArrivalHall) purge(now time.Time, window time.Duration) (dropped int) {
	for sn, t := range h.firstSeen {
		if now.Sub(t) >= window {
			delete(h.arrivals, sn)
			delete(h.firstSeen, sn)
			dropped++
		}
	}
	return dropped
}
