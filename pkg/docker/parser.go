package docker

import (
	"time"

	"github.com/r2northstar/startrek/pkg/ship"
)

// Parser is the protocol-specific boundary spec.md §1 keeps out of
// core scope: it turns raw inbound bytes into Arrivals, and builds the
// minimal keep-alive Departure a Docker sends as a heartbeat.
type Parser interface {
	// ParseArrivals extracts zero or more complete Arrival frames from
	// buffered (which may include bytes left over from a previous,
	// incomplete call). It returns the arrivals found, in order, and
	// any trailing bytes that do not yet form a complete frame.
	ParseArrivals(buffered []byte, now time.Time) (arrivals []ship.Arrival, rest []byte)

	// NewHeartbeat builds a minimal PING Departure, sent Urgent and
	// disposable (spec.md §4.6).
	NewHeartbeat(now time.Time) ship.Departure
}
