// Package conn implements the per-peer byte pipe and its six-state
// timed state machine (spec.md §4.3-4.4): Connection wraps a Channel,
// tracks send/receive activity, and reports state transitions and I/O
// outcomes to a Delegate.
package conn

import (
	"errors"
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/r2northstar/startrek/pkg/stnet"
	"github.com/r2northstar/startrek/pkg/strmetrics"
)

// Opener produces a fresh Channel to remote, used by ActiveConnection
// to reconnect when its Channel disappears while still referenced.
// *hub.Hub satisfies this.
type Opener interface {
	Open(remote, local netip.AddrPort) (stnet.Channel, error)
}

// Connection is a per-peer byte pipe with timed state, per spec.md
// §4.3-4.4.
type Connection struct {
	mu sync.Mutex

	remote, local netip.AddrPort
	channel       stnet.Channel
	everAlive     bool
	firstByteSeen bool

	lastSent     time.Time
	lastReceived time.Time

	state      State
	enterTime  time.Time
	cfg        Config
	delegate   Delegate
	log        zerolog.Logger

	active bool
	opener Opener
}

// New creates a passive (BaseConnection) Connection: if its channel
// disappears, it simply errors out rather than reconnecting.
func New(remote, local netip.AddrPort, channel stnet.Channel, delegate Delegate, cfg Config, log zerolog.Logger) *Connection {
	return &Connection{
		remote: remote, local: local, channel: channel,
		state: StateDefault, cfg: cfg, delegate: delegate, log: log,
	}
}

// NewActive creates an ActiveConnection: if its channel disappears
// while the Connection is still referenced, it asks opener for a fresh
// channel to the same remote on the next Tick.
func NewActive(remote, local netip.AddrPort, channel stnet.Channel, delegate Delegate, cfg Config, log zerolog.Logger, opener Opener) *Connection {
	c := New(remote, local, channel, delegate, cfg, log)
	c.active = true
	c.opener = opener
	return c
}

// Active reports whether this Connection is an ActiveConnection that
// will attempt to reconnect on a dead channel, as opposed to a passive
// BaseConnection that simply errors out.
func (c *Connection) Active() bool { c.mu.Lock(); defer c.mu.Unlock(); return c.active }

func (c *Connection) Remote() netip.AddrPort { c.mu.Lock(); defer c.mu.Unlock(); return c.remote }
func (c *Connection) Local() netip.AddrPort  { c.mu.Lock(); defer c.mu.Unlock(); return c.local }

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) Channel() stnet.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// SetChannel replaces the underlying channel, e.g. after a Hub
// reconnect. It resets the "ever alive"/"first byte" tracking since
// this is effectively a new socket.
func (c *Connection) SetChannel(ch stnet.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channel = ch
	c.everAlive = false
	c.firstByteSeen = false
}

// Send wraps data and writes it to the channel, returning the number
// of bytes actually written. On a closed channel or I/O failure, it
// notifies the delegate and closes the channel; callers decide whether
// to retry or fragment further.
func (c *Connection) Send(data []byte) (int, error) {
	c.mu.Lock()
	ch := c.channel
	remote := c.remote
	c.mu.Unlock()

	if ch == nil {
		err := errors.New("conn: no channel")
		c.log.Error().Str("remote", remote.String()).Msg("conn: send with no channel")
		c.delegate.OnError(c, err)
		return 0, err
	}

	n, err := ch.Send(data, remote)
	if err != nil {
		if errors.Is(err, stnet.ErrClosedChannel) {
			c.log.Warn().Err(err).Str("remote", remote.String()).Msg("conn: send to closed channel")
			c.delegate.OnFailedToSend(c, data, err)
		} else {
			c.log.Error().Err(err).Str("remote", remote.String()).Msg("conn: send failed")
			c.delegate.OnError(c, err)
		}
		ch.Close()
		return n, err
	}

	c.mu.Lock()
	c.lastSent = time.Now()
	c.mu.Unlock()

	if n > 0 {
		c.delegate.OnSent(c, data, n)
	}
	return n, nil
}

// OnReceived records receive activity and forwards data to the
// delegate.
func (c *Connection) OnReceived(data []byte) {
	c.mu.Lock()
	c.lastReceived = time.Now()
	c.firstByteSeen = true
	c.mu.Unlock()

	c.delegate.OnReceived(c, data)
}

// Close closes the underlying channel. The state machine advances to
// Error (and then Default, if replaced) on the next Tick.
func (c *Connection) Close() error {
	c.mu.Lock()
	ch := c.channel
	remote := c.remote
	c.mu.Unlock()
	if ch == nil {
		return nil
	}
	c.log.Debug().Str("remote", remote.String()).Msg("conn: closing channel")
	return ch.Close()
}

// Tick evaluates the state machine and, for an ActiveConnection whose
// channel has disappeared, attempts to reconnect. It returns whether
// the state changed this tick.
func (c *Connection) Tick(now time.Time) bool {
	c.mu.Lock()

	if c.active && (c.channel == nil || !c.channel.Alive()) && c.state == StateError {
		if ch, err := c.opener.Open(c.remote, c.local); err == nil && ch != nil {
			c.channel = ch
			c.everAlive = false
			c.firstByteSeen = false
			c.log.Debug().Str("remote", c.remote.String()).Msg("conn: reopened channel after error")
		} else if err != nil {
			c.log.Error().Err(err).Str("remote", c.remote.String()).Msg("conn: reconnect failed")
		}
	}

	s := signals{
		now:           now,
		channelNil:    c.channel == nil,
		lastSent:      c.lastSent,
		lastReceived:  c.lastReceived,
		firstByteSeen: c.firstByteSeen,
	}
	if c.channel != nil {
		s.channelAlive = c.channel.Alive()
		if s.channelAlive {
			c.everAlive = true
		}
	}
	s.everAlive = c.everAlive

	prev := c.state
	next := evaluate(prev, c.cfg, s)
	changed := next != prev
	if changed {
		c.state = next
		c.enterTime = now
		if next == StateDefault {
			// Default is re-entered with a clean slate (e.g. Error ->
			// Default once the channel has been replaced).
			c.everAlive = false
			c.firstByteSeen = false
		}
	}
	c.mu.Unlock()

	c.log.Debug().Str("remote", c.remote.String()).Str("state", prev.String()).
		Bool("channelAlive", s.channelAlive).Msg("conn: tick")

	if changed {
		c.log.Trace().Str("remote", c.remote.String()).Str("from", prev.String()).Str("to", next.String()).Msg("conn: state changed")
		if next == StateError {
			c.log.Error().Str("remote", c.remote.String()).Msg("conn: channel failure, entering error state")
		}
		strmetrics.RecordStateTransition(next.String())
		c.delegate.OnStateChanged(c, prev, next)
	}
	return changed
}

// EnterTime returns when the current state was entered.
func (c *Connection) EnterTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enterTime
}

// LastSentTime and LastReceivedTime expose the raw activity timestamps
// used by the state machine, e.g. for Gate's heartbeat scheduling.
func (c *Connection) LastSentTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSent
}

func (c *Connection) LastReceivedTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReceived
}
