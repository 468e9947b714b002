package conn

import "time"

// State is one of the six Connection lifecycle states from spec.md
// §4.3.
type State int

const (
	StateDefault State = iota
	StatePreparing
	StateReady
	StateMaintaining
	StateExpired
	StateError
)

func (s State) String() string {
	switch s {
	case StateDefault:
		return "default"
	case StatePreparing:
		return "preparing"
	case StateReady:
		return "ready"
	case StateMaintaining:
		return "maintaining"
	case StateExpired:
		return "expired"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config holds the Connection-level timing tunables from spec.md §4.3.
// These are independent of (and, per spec.md, numerically different
// from) the Dock/Ship tunables in pkg/dock.
type Config struct {
	Expires   time.Duration // EXPIRES, default 16s
	RecvFresh time.Duration // RECV_FRESH, default 2*EXPIRES
}

// DefaultConfig matches spec.md §4.3's suggested defaults.
func DefaultConfig() Config {
	expires := 16 * time.Second
	return Config{Expires: expires, RecvFresh: 2 * expires}
}

// signals is the observable connection state evaluate() reads: current
// channel liveness plus the send/receive timestamps it reacts to.
type signals struct {
	now           time.Time
	channelAlive  bool
	channelNil    bool
	everAlive     bool // channel has been Alive() at least once since assignment
	firstByteSeen bool // at least one byte has ever been received
	lastSent      time.Time
	lastReceived  time.Time
}

// evaluate centralizes the transition table of spec.md §4.3. It
// returns the next state, or the same state if nothing should change.
func evaluate(cur State, cfg Config, s signals) State {
	switch cur {
	case StateDefault:
		if !s.channelNil && !s.channelAlive {
			return StatePreparing
		}
		if !s.channelNil && s.channelAlive {
			// A channel that is already alive when we notice it (e.g.
			// a pre-connected socket) skips straight to Preparing on
			// this tick; the next tick will promote it to Ready once
			// a byte has been seen.
			return StatePreparing
		}
		return cur
	case StatePreparing:
		if s.channelNil {
			return cur
		}
		if s.channelAlive {
			if s.firstByteSeen {
				return StateReady
			}
			return cur
		}
		// Not alive: if it was alive before (and is now closed), that
		// is a failed prepare; if it has never been alive yet, the
		// open/connect is still pending and we keep waiting.
		if s.everAlive {
			return StateDefault
		}
		return cur
	case StateReady:
		if !s.channelAlive {
			return StateError
		}
		if s.now.Sub(s.lastReceived) >= cfg.RecvFresh {
			return StateExpired
		}
		return cur
	case StateMaintaining:
		if !s.channelAlive {
			return StateError
		}
		if !s.lastReceived.IsZero() && s.lastReceived.After(s.lastSent) {
			return StateReady
		}
		if s.now.Sub(s.lastSent) >= cfg.Expires {
			return StateExpired
		}
		return cur
	case StateExpired:
		if !s.channelAlive {
			return StateError
		}
		if !s.lastSent.IsZero() && s.now.Sub(s.lastSent) < cfg.Expires {
			// A heartbeat/send just happened (lastSent was refreshed
			// since we last observed Expired).
			return StateMaintaining
		}
		return cur
	case StateError:
		// Only a replaced channel (alive, or fresh and never yet alive)
		// leaves Error; the dead channel that caused it does not.
		if !s.channelNil && (s.channelAlive || !s.everAlive) {
			return StateDefault
		}
		return cur
	default:
		return cur
	}
}
