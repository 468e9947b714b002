// Package gate implements the Docker pool and top-level send/receive
// API of spec.md §4.7: Gate owns one Docker per (remote, local)
// address pair, routes inbound Connection bytes to the right Docker,
// schedules heartbeats and purges, and buffers an "advance party" of
// raw bytes for connections whose protocol has not yet been
// identified.
package gate

import (
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/r2northstar/startrek/pkg/addrpair"
	"github.com/r2northstar/startrek/pkg/conn"
	"github.com/r2northstar/startrek/pkg/dock"
	"github.com/r2northstar/startrek/pkg/docker"
	"github.com/r2northstar/startrek/pkg/ship"
	"github.com/r2northstar/startrek/pkg/strmetrics"
)

// Config holds the Gate-level tunables from spec.md §6.
type Config struct {
	Dock            dock.Config
	Conn            conn.Config
	HeartbeatMs     time.Duration
	PurgeMs         time.Duration
	AdvancePartyCap int
}

// DefaultConfig matches spec.md §6's recognized options.
func DefaultConfig() Config {
	return Config{
		Dock:            dock.DefaultConfig(),
		Conn:            conn.DefaultConfig(),
		HeartbeatMs:     30 * time.Second,
		PurgeMs:         60 * time.Second,
		AdvancePartyCap: 8,
	}
}

// DockerFactory creates a protocol-specific Docker for a newly
// identified Connection, given any advance-party bytes buffered before
// the protocol was recognized.
type DockerFactory func(c *conn.Connection, advanceParty [][]byte) (*docker.Docker, error)

// Sniffer inspects the advance-party buffer and reports whether it can
// already identify (and therefore construct) a Docker, or needs more
// bytes.
type Sniffer interface {
	// TryIdentify attempts to recognize the protocol from buffered
	// bytes. ok is false if more bytes are needed (and nothing should
	// be dropped); when ok is true, factory is used to build the
	// Docker for this connection, with the buffered chunks replayed
	// through ProcessReceived, one call per chunk, in arrival order.
	TryIdentify(buffered [][]byte) (factory DockerFactory, ok bool)
}

// Gate is the multi-docker hub entry point.
type Gate struct {
	cfg Config
	log zerolog.Logger

	dockers *addrpair.Map[*docker.Docker]

	mu           sync.Mutex
	advanceParty map[*conn.Connection][][]byte
	sniffer      Sniffer

	lastPurge     time.Time
	lastHeartbeat time.Time
}

// New creates a Gate. sniffer may be nil if every Connection handed to
// the Gate already has its Docker created directly (e.g. via
// CreateDocker), bypassing advance-party detection entirely.
func New(cfg Config, sniffer Sniffer, log zerolog.Logger) *Gate {
	return &Gate{
		cfg:          cfg,
		log:          log,
		dockers:      addrpair.New[*docker.Docker](),
		advanceParty: make(map[*conn.Connection][][]byte),
		sniffer:      sniffer,
	}
}

// CreateDocker registers a Docker explicitly for (remote, local),
// bypassing advance-party sniffing. Use this when the protocol is
// known up front (e.g. one Docker factory per listening port).
func (g *Gate) CreateDocker(remote, local netip.AddrPort, c *conn.Connection, parser docker.Parser, delegate docker.Delegate) *docker.Docker {
	dk := docker.New(c, parser, delegate, g.cfg.Dock, g.log)
	g.dockers.Put(remote, local, dk)
	return dk
}

// Send routes payload, an already-built Departure, to the Docker for
// (remote, local), exactly as SendShip does. It does not wrap raw bytes
// and does not change the Departure's priority or importance.
func (g *Gate) Send(now time.Time, payload ship.Departure, remote, local netip.AddrPort) bool {
	return g.SendShip(now, payload, remote, local)
}

// SendShip routes outgo to the Docker registered for (remote, local).
// It returns false if no Docker is registered there, or if the Docker
// rejects outgo as a duplicate.
func (g *Gate) SendShip(now time.Time, outgo ship.Departure, remote, local netip.AddrPort) bool {
	dk, ok := g.dockers.Get(remote, local)
	if !ok {
		return false
	}
	return dk.SendShip(now, outgo)
}

// Docker looks up the Docker registered for (remote, local).
func (g *Gate) Docker(remote, local netip.AddrPort) (*docker.Docker, bool) {
	return g.dockers.Get(remote, local)
}

// OnReceived is the ConnectionDelegate callback Gate installs on every
// Connection it owns (Gate implements conn.Delegate itself). It looks
// up or creates the
// Docker for c, buffering bytes in the advance-party cache until the
// protocol is identified.
func (g *Gate) OnReceived(c *conn.Connection, data []byte) {
	now := time.Now()
	if dk, ok := g.dockers.Get(c.Remote(), c.Local()); ok {
		dk.ProcessReceived(now, data)
		strmetrics.ArrivalBytes.Add(len(data))
		return
	}
	g.bufferAdvanceParty(c, data)
}

func (g *Gate) bufferAdvanceParty(c *conn.Connection, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()

	buf := append(g.advanceParty[c], append([]byte(nil), data...))
	if len(buf) > g.cfg.AdvancePartyCap {
		buf = buf[len(buf)-g.cfg.AdvancePartyCap:]
	}
	g.advanceParty[c] = buf

	if g.sniffer == nil {
		return
	}
	factory, ok := g.sniffer.TryIdentify(buf)
	if !ok {
		return
	}
	dk, err := factory(c, buf)
	delete(g.advanceParty, c)
	if err != nil {
		g.log.Warn().Err(err).Msg("gate: advance-party docker factory failed")
		return
	}
	g.dockers.Put(c.Remote(), c.Local(), dk)
	now := time.Now()
	for _, chunk := range buf {
		dk.ProcessReceived(now, chunk)
	}
}

// OnStateChanged is the ConnectionDelegate callback forwarding state
// transitions to the owning Docker's status, per the mapping in
// spec.md §4.7.
func (g *Gate) OnStateChanged(c *conn.Connection, prev, curr conn.State) {
	dk, ok := g.dockers.Get(c.Remote(), c.Local())
	if !ok {
		return
	}
	dk.OnStatusChanged(dockerStatus(curr))
}

func dockerStatus(s conn.State) docker.Status {
	switch s {
	case conn.StateReady, conn.StateExpired, conn.StateMaintaining:
		return docker.StatusReady
	case conn.StatePreparing:
		return docker.StatusPreparing
	case conn.StateDefault:
		return docker.StatusInit
	default: // StateError
		return docker.StatusError
	}
}

// OnSent is the ConnectionDelegate callback for a successful write.
// Gate has nothing of its own to track here; Docker-level send
// bookkeeping happens in Docker.Tick via the Departure's own state.
func (g *Gate) OnSent(c *conn.Connection, data []byte, length int) {}

// OnFailedToSend is the ConnectionDelegate callback for a failed
// write.
func (g *Gate) OnFailedToSend(c *conn.Connection, data []byte, err error) {
	g.log.Warn().Err(err).Str("remote", c.Remote().String()).Msg("gate: send failed")
}

// OnError is the ConnectionDelegate callback forwarding fatal I/O
// errors to the owning Docker.
func (g *Gate) OnError(c *conn.Connection, err error) {
	g.log.Warn().Err(err).Str("remote", c.Remote().String()).Msg("gate: connection error")
	if dk, ok := g.dockers.Get(c.Remote(), c.Local()); ok {
		dk.OnStatusChanged(docker.StatusError)
	}
}

// Tick advances every Docker, schedules heartbeats, and runs periodic
// purges, per spec.md §4.7.
func (g *Gate) Tick(now time.Time) {
	dockers := addrpair.Values(g.dockers, func(d *docker.Docker) *docker.Docker { return d })
	for _, dk := range dockers {
		dk.Tick(now)
	}

	if g.lastHeartbeat.IsZero() || now.Sub(g.lastHeartbeat) >= g.cfg.HeartbeatMs {
		g.lastHeartbeat = now
		for _, dk := range dockers {
			st := dk.Connection().State()
			if st == conn.StateExpired || st == conn.StateMaintaining {
				dk.Heartbeat(now)
			}
		}
	}

	if g.lastPurge.IsZero() || now.Sub(g.lastPurge) >= g.cfg.PurgeMs {
		g.lastPurge = now
		for _, dk := range dockers {
			dk.Purge(now)
		}
		g.cleanupDockers()
	}
}

// cleanupDockers removes Dockers whose Connection has closed.
func (g *Gate) cleanupDockers() {
	dockers := addrpair.Values(g.dockers, func(d *docker.Docker) *docker.Docker { return d })
	for _, dk := range dockers {
		c := dk.Connection()
		if c.State() == conn.StateError && !c.Channel().Alive() {
			g.dockers.Remove(c.Remote(), c.Local(), nil, nil)
		}
	}
}
