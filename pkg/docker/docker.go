// Package docker implements the pipeline between a Connection's bytes
// and an application's ships (spec.md §4.6): reassembling inbound
// fragments via a Dock, and fragmenting/queuing/retrying outbound
// Departures.
package docker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/r2northstar/startrek/pkg/conn"
	"github.com/r2northstar/startrek/pkg/dock"
	"github.com/r2northstar/startrek/pkg/ship"
	"github.com/r2northstar/startrek/pkg/strmetrics"
)

// Docker lives for as long as its Connection lives. Unlike the
// Objective-C original, which held a weak reference from Docker to
// Connection to let the Connection be reclaimed independently, Go's
// tracing garbage collector handles the resulting Connection<->Docker
// reference cycle (Gate -> Docker -> Connection, Hub -> Connection)
// without help, so Docker simply holds its Connection directly.
type Docker struct {
	mu sync.Mutex

	connection *conn.Connection
	d          *dock.LockedDock
	parser     Parser
	delegate   Delegate
	log        zerolog.Logger

	pending      []byte // advance_party_bytes: unparsed tail from the last ProcessReceived
	lastOutbound time.Time
	status       Status
}

// New creates a Docker bound to connection, using dockCfg for its
// Dock's reassembly/retry tunables.
func New(connection *conn.Connection, parser Parser, delegate Delegate, dockCfg dock.Config, log zerolog.Logger) *Docker {
	return &Docker{
		connection: connection,
		d:          dock.NewLocked(dockCfg),
		parser:     parser,
		delegate:   delegate,
		log:        log,
	}
}

func (dk *Docker) Connection() *conn.Connection { return dk.connection }

func (dk *Docker) Status() Status {
	dk.mu.Lock()
	defer dk.mu.Unlock()
	return dk.status
}

// OnStatusChanged updates the Docker's status projection of its
// Connection's state and notifies the delegate if it changed. Gate
// calls this from its ConnectionDelegate.onStateChanged handler.
func (dk *Docker) OnStatusChanged(curr Status) {
	dk.mu.Lock()
	prev := dk.status
	dk.status = curr
	dk.mu.Unlock()
	if prev != curr {
		dk.delegate.OnStatusChanged(dk, prev, curr)
	}
}

// ProcessReceived assembles raw bytes into Arrivals and dispatches
// each one: checkResponse first (firing onSent for a completed
// Departure), then onArrival, per spec.md §4.6.
func (dk *Docker) ProcessReceived(now time.Time, data []byte) {
	dk.mu.Lock()
	buffered := append(dk.pending, data...)
	dk.mu.Unlock()

	start := now
	arrivals, rest := dk.parser.ParseArrivals(buffered, now)

	dk.mu.Lock()
	dk.pending = rest
	dk.mu.Unlock()

	for _, a := range arrivals {
		checked, ok := dk.d.AssembleArrival(now, a)
		if !ok {
			continue // fragment buffered, waiting for more
		}
		strmetrics.ReassemblyDurationSec.UpdateDuration(start)
		strmetrics.ArrivalsTotal.Inc()
		if dep, matched := dk.d.CheckResponse(now, checked); matched {
			dk.delegate.OnSent(dk, dep)
		}
		dk.log.Trace().Str("sn", string(checked.SN())).Int("len", len(checked.Payload())).Msg("docker: arrival")
		dk.delegate.OnArrival(dk, checked)
	}
}

// SendShip enqueues ship for delivery. It returns false if ship is an
// important duplicate of an already-tracked, un-done SN.
func (dk *Docker) SendShip(now time.Time, outgo ship.Departure) bool {
	return dk.d.AddDeparture(now, outgo)
}

// Heartbeat enqueues a protocol keep-alive as an Urgent, disposable
// Departure. The Connection's Tick (via Docker.Tick) drains and
// actually sends it.
func (dk *Docker) Heartbeat(now time.Time) {
	hb := dk.parser.NewHeartbeat(now)
	dk.d.AddDeparture(now, hb)
}

// Tick drains ready Departures and sends their first fragment, one per
// call into Connection.Send, until the Dock has nothing ready or a
// send fails.
func (dk *Docker) Tick(now time.Time) {
	defer strmetrics.DockerTickDurationSec.UpdateDuration(now)
	sent := 0
	for {
		d := dk.d.NextDeparture(now)
		if d == nil {
			break
		}
		frags := d.Fragments()
		if len(frags) == 0 {
			continue
		}
		n, err := dk.connection.Send(frags[0])
		if err != nil {
			strmetrics.DeparturesFailedTotal.Inc()
			dk.delegate.OnFailedToSend(dk, d, err)
			dk.log.Debug().Int("sent", sent).Msg("docker: tick")
			return
		}
		if n == 0 {
			dk.delegate.OnSending(dk, d, nil)
			dk.log.Debug().Int("sent", sent).Msg("docker: tick")
			return
		}
		strmetrics.DeparturesSentTotal.Inc()
		dk.mu.Lock()
		dk.lastOutbound = now
		dk.mu.Unlock()
		if fc, ok := d.(ship.FragmentConsumer); ok {
			fc.ConsumeFragment(n)
		}
		sent++
	}
	dk.log.Debug().Int("sent", sent).Msg("docker: tick")
}

// Purge forwards to the underlying Dock's periodic cleanup, logging the
// drop counts when anything was actually reclaimed.
func (dk *Docker) Purge(now time.Time) (droppedArrivals, droppedDepartures int) {
	droppedArrivals, droppedDepartures = dk.d.Purge(now)
	if droppedArrivals > 0 || droppedDepartures > 0 {
		dk.log.Debug().Int("droppedArrivals", droppedArrivals).Int("droppedDepartures", droppedDepartures).Msg("docker: purge")
	}
	return droppedArrivals, droppedDepartures
}

// LastOutboundTime reports when Tick last successfully sent bytes.
func (dk *Docker) LastOutboundTime() time.Time {
	dk.mu.Lock()
	defer dk.mu.Unlock()
	return dk.lastOutbound
}
