package dock

import (
	"sort"
	"time"

	"github.com/r2northstar/startrek/pkg/ship"
)

// DepartureHall holds outbound Departures pending acknowledgement and
// retry, organized as one FIFO per priority.
type DepartureHall struct {
	priorities []int
	fifos      map[int][]ship.Departure
	bySN       map[ship.ID]ship.Departure
	timestamps map[ship.ID]time.Time
	done       map[ship.ID]time.Time // SN -> completion time, TTL = expires
}

func newDepartureHall() *DepartureHall {
	return &DepartureHall{
		fifos:      make(map[int][]ship.Departure),
		bySN:       make(map[ship.ID]ship.Departure),
		timestamps: make(map[ship.ID]time.Time),
		done:       make(map[ship.ID]time.Time),
	}
}

// addDeparture enqueues outgo. It returns false iff outgo is important
// and an un-done important Departure with the same SN is already
// tracked.
func (h *DepartureHall) addDeparture(now time.Time, outgo ship.Departure) bool {
	sn := outgo.SN()
	if outgo.Important() {
		if _, ok := h.bySN[sn]; ok {
			return false
		}
		h.bySN[sn] = outgo
		h.timestamps[sn] = now
	}
	h.insertFIFO(outgo)
	return true
}

func (h *DepartureHall) insertFIFO(d ship.Departure) {
	p := d.Priority()
	if _, ok := h.fifos[p]; !ok {
		h.insertPrioritySorted(p)
	}
	h.fifos[p] = append(h.fifos[p], d)
}

func (h *DepartureHall) insertPrioritySorted(p int) {
	i := sort.SearchInts(h.priorities, p)
	h.priorities = append(h.priorities, 0)
	copy(h.priorities[i+1:], h.priorities[i:])
	h.priorities[i] = p
}

// checkResponse matches arrival against a tracked Departure by SN.
// It returns the completed Departure and true once all of its
// fragments have been acknowledged; (nil, false) if the Departure is
// still waiting on more fragments, or if the SN is unknown (including
// when it is a duplicate response for an already-completed SN, which
// is silently absorbed).
func (h *DepartureHall) checkResponse(now time.Time, arrival ship.Arrival) (ship.Departure, bool) {
	sn := arrival.SN()
	d, ok := h.bySN[sn]
	if !ok {
		// Unknown SN: either a duplicate of a completed response
		// (absorbed) or genuinely unsolicited (caller may still use
		// the arrival itself).
		return nil, false
	}
	if !d.CheckResponse(arrival) {
		return nil, false
	}
	h.removeBySN(sn, d.Priority())
	h.done[sn] = now
	return d, true
}

// isDuplicate reports whether sn has a live completion tombstone.
func (h *DepartureHall) isDuplicate(sn ship.ID) bool {
	_, ok := h.done[sn]
	return ok
}

func (h *DepartureHall) removeBySN(sn ship.ID, priority int) {
	delete(h.bySN, sn)
	delete(h.timestamps, sn)
	fifo := h.fifos[priority]
	for i, d := range fifo {
		if d.SN() == sn {
			h.fifos[priority] = append(fifo[:i], fifo[i+1:]...)
			break
		}
	}
}

// nextDeparture scans priorities ascending, popping ready Departures
// and skipping priorities whose head is still Waiting.
func (h *DepartureHall) nextDeparture(now time.Time, expires time.Duration, maxTries int) ship.Departure {
	for _, p := range h.priorities {
		for {
			fifo := h.fifos[p]
			if len(fifo) == 0 {
				break
			}
			d := fifo[0]
			switch d.Status(now, expires, maxTries) {
			case ship.DepartureDone, ship.DepartureFailed:
				h.fifos[p] = fifo[1:]
				if d.Important() {
					h.removeBySN(d.SN(), p)
				}
				continue
			case ship.DepartureNew, ship.DepartureTimeout:
				h.fifos[p] = fifo[1:]
				d.Touch(now)
				if d.Important() {
					h.fifos[p] = append(h.fifos[p], d)
				}
				return d
			case ship.DepartureWaiting:
				// move on to the next priority; this one isn't ready
			}
			break
		}
	}
	return nil
}

// purge drops Departures whose status is Failed, and expires done
// tombstones older than expires.
func (h *DepartureHall) purge(now time.Time, expires time.Duration, maxTries int) (dropped int) {
	for _, p := range h.priorities {
		fifo := h.fifos[p]
		kept := fifo[:0]
		for _, d := range fifo {
			if d.Status(now, expires, maxTries) == ship.DepartureFailed {
				if d.Important() {
					delete(h.bySN, d.SN())
					delete(h.timestamps, d.SN())
				}
				dropped++
				continue
			}
			kept = append(kept, d)
		}
		h.fifos[p] = kept
	}
	for sn, t := range h.done {
		if now.Sub(t) >= expires {
			delete(h.done, sn)
		}
	}
	return dropped
}
