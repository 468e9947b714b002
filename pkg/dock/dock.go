// Package dock implements per-connection ship reassembly and retry
// bookkeeping: ArrivalHall assembles inbound fragments, DepartureHall
// tracks outbound Departures pending acknowledgement and retry.
package dock

import (
	"sync"
	"time"

	"github.com/r2northstar/startrek/pkg/ship"
)

// Config holds the tunables spec.md §6 names.
type Config struct {
	Expires      time.Duration // EXPIRES
	ReassemblyMs time.Duration // reassembly window
	MaxTries     int
}

// DefaultConfig matches spec.md §3's suggested defaults.
func DefaultConfig() Config {
	return Config{
		Expires:      120 * time.Second,
		ReassemblyMs: 300 * time.Second,
		MaxTries:     3,
	}
}

// Dock owns one ArrivalHall and one DepartureHall. It is not safe for
// concurrent use; see LockedDock for a synchronized variant.
type Dock struct {
	cfg Config
	ah  *ArrivalHall
	dh  *DepartureHall
}

// New creates a Dock with the given configuration.
func New(cfg Config) *Dock {
	return &Dock{cfg: cfg, ah: newArrivalHall(), dh: newDepartureHall()}
}

// AssembleArrival feeds income into the ArrivalHall. See
// ArrivalHall.assembleArrival.
func (d *Dock) AssembleArrival(now time.Time, income ship.Arrival) (ship.Arrival, bool) {
	return d.ah.assembleArrival(now, income)
}

// AddDeparture enqueues outgo. See DepartureHall.addDeparture.
func (d *Dock) AddDeparture(now time.Time, outgo ship.Departure) bool {
	return d.dh.addDeparture(now, outgo)
}

// CheckResponse matches arrival against a tracked Departure. See
// DepartureHall.checkResponse. IsDuplicateResponse reports whether arrival's SN
// already has a completion tombstone, useful when CheckResponse
// returns false and the caller wants to distinguish "duplicate,
// absorb" from "unsolicited, may still deliver to the application".
func (d *Dock) CheckResponse(now time.Time, arrival ship.Arrival) (ship.Departure, bool) {
	return d.dh.checkResponse(now, arrival)
}

// IsDuplicateResponse reports whether arrival's SN matches a recently
// completed Departure's tombstone.
func (d *Dock) IsDuplicateResponse(arrival ship.Arrival) bool {
	return d.dh.isDuplicate(arrival.SN())
}

// NextDeparture returns the next Departure ready to send, or nil if
// nothing is ready. See DepartureHall.nextDeparture.
func (d *Dock) NextDeparture(now time.Time) ship.Departure {
	return d.dh.nextDeparture(now, d.cfg.Expires, d.cfg.MaxTries)
}

// Purge drops expired in-progress arrivals, failed departures, and
// stale done-tombstones.
func (d *Dock) Purge(now time.Time) (droppedArrivals, droppedDepartures int) {
	droppedArrivals = d.ah.purge(now, d.cfg.ReassemblyMs)
	droppedDepartures = d.dh.purge(now, d.cfg.Expires, d.cfg.MaxTries)
	return
}

// LockedDock wraps a Dock with a single coarse mutex serializing every
// operation, for use when the application thread and the driver thread
// may call into the same Dock concurrently.
type LockedDock struct {
	mu sync.Mutex
	d  *Dock
}

// NewLocked creates a LockedDock with the given configuration.
func NewLocked(cfg Config) *LockedDock {
	return &LockedDock{d: New(cfg)}
}

func (l *LockedDock) AssembleArrival(now time.Time, income ship.Arrival) (ship.Arrival, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.d.AssembleArrival(now, income)
}

func (l *LockedDock) AddDeparture(now time.Time, outgo ship.Departure) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.d.AddDeparture(now, outgo)
}

func (l *LockedDock) CheckResponse(now time.Time, arrival ship.Arrival) (ship.Departure, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.d.CheckResponse(now, arrival)
}

func (l *LockedDock) IsDuplicateResponse(arrival ship.Arrival) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.d.IsDuplicateResponse(arrival)
}

func (l *LockedDock) NextDeparture(now time.Time) ship.Departure {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.d.NextDeparture(now)
}

func (l *LockedDock) Purge(now time.Time) (droppedArrivals, droppedDepartures int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.d.Purge(now)
}
