// Package ship defines the message envelope types carried across the
// transport core: Arrival (inbound fragment) and Departure (outbound,
// retriable). Concrete wire formats are out of scope here; the core
// trades in these abstractions only.
package ship

import "time"

// ID identifies a Ship. It is opaque to the core: protocols assign
// their own SN bytes, as long as they are comparable and hashable.
// string satisfies both and is the natural choice for a byte-derived
// key, so ID is defined as one.
type ID string

// ArrivalStatus is the lifecycle of an in-progress inbound Arrival.
type ArrivalStatus int

const (
	ArrivalAssembling ArrivalStatus = iota
	ArrivalExpired
)

func (s ArrivalStatus) String() string {
	switch s {
	case ArrivalAssembling:
		return "assembling"
	case ArrivalExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// DepartureStatus is the lifecycle of an outbound Departure.
type DepartureStatus int

const (
	DepartureNew DepartureStatus = iota
	DepartureWaiting
	DepartureTimeout
	DepartureDone
	DepartureFailed
)

func (s DepartureStatus) String() string {
	switch s {
	case DepartureNew:
		return "new"
	case DepartureWaiting:
		return "waiting"
	case DepartureTimeout:
		return "timeout"
	case DepartureDone:
		return "done"
	case DepartureFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Priority reserved values. Smaller is sent earlier.
const (
	PriorityUrgent = -1
	PriorityNormal = 0
	PrioritySlower = 1
)

// Arrival is one received fragment of a (possibly multi-fragment)
// inbound message.
type Arrival interface {
	SN() ID
	// Status reports whether this Arrival is still a candidate for
	// reassembly (Assembling) or has aged out (Expired).
	Status(now time.Time) ArrivalStatus
	// Assemble merges other into the receiver's fragment set.
	// It returns a new, completed Arrival if merging closes the set of
	// fragments (including the degenerate case where the Arrival was
	// already a complete, monolithic packet), or nil if more fragments
	// are still needed.
	Assemble(other Arrival) Arrival
	// Payload returns the reassembled application bytes. Only
	// meaningful once Assemble has returned a completed Arrival.
	Payload() []byte
}

// Departure is an outbound message, possibly split into fragments,
// subject to retry until acknowledged or exhausted.
type Departure interface {
	SN() ID
	// Fragments returns the remaining unacknowledged fragments, in
	// send order. CheckResponse removes fragments as they are
	// acknowledged.
	Fragments() [][]byte
	Priority() int
	// Important reports whether this Departure is tracked for
	// acknowledgement and retried; a disposable (non-important)
	// Departure is sent at most once and never indexed by SN.
	Important() bool
	TriesLeft() int
	LastTime() time.Time
	// Touch records a send attempt at now and decrements TriesLeft.
	Touch(now time.Time)
	// Status derives the Departure's lifecycle from its current
	// fragments/LastTime/TriesLeft relative to now and the configured
	// expiry.
	Status(now time.Time, expires time.Duration, initialTries int) DepartureStatus
	// CheckResponse consults arrival for fragment acknowledgement,
	// removing matched fragments, and reports whether all fragments
	// have now been acknowledged.
	CheckResponse(arrival Arrival) bool
}

// FragmentConsumer is an optional interface a Departure may implement
// to let the docker pipeline advance past a partially or fully sent
// first fragment without waiting for an acknowledgement. *BaseDeparture
// implements this.
type FragmentConsumer interface {
	ConsumeFragment(sent int)
}
