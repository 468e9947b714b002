package ship

import "time"

// FragmentArrival is a generic, index-addressed Arrival
// implementation: a message split into a known total number of
// fragments, each identified by its page index. Protocols that carry
// an explicit (sn, index, total, payload) header can use this
// directly instead of reimplementing reassembly.
type FragmentArrival struct {
	sn      ID
	total   int
	seenAt  time.Time
	window  time.Duration
	pages   map[int][]byte // index -> payload of every page received so far
	ordered [][]byte       // filled in once complete, in index order
}

// NewFragmentArrival creates a single-page Arrival fragment. total is
// the total number of fragments the complete message is split into (1
// for a monolithic packet); window is the reassembly expiry used by
// Status.
func NewFragmentArrival(sn ID, index, total int, payload []byte, seenAt time.Time, window time.Duration) *FragmentArrival {
	a := &FragmentArrival{sn: sn, total: total, seenAt: seenAt, window: window, pages: map[int][]byte{index: payload}}
	if total <= 1 {
		a.ordered = [][]byte{payload}
	}
	return a
}

func (a *FragmentArrival) SN() ID { return a.sn }

func (a *FragmentArrival) Status(now time.Time) ArrivalStatus {
	if now.Sub(a.seenAt) >= a.window {
		return ArrivalExpired
	}
	return ArrivalAssembling
}

// Assemble merges other's pages into the receiver. It returns a new
// completed *FragmentArrival once every page 0..total-1 is present, or
// nil if pages are still missing. Calling Assemble(self) on an
// already-complete single-fragment Arrival returns itself unchanged,
// matching the monolithic-packet case in spec.md §4.5.
func (a *FragmentArrival) Assemble(other Arrival) Arrival {
	o, ok := other.(*FragmentArrival)
	if !ok || o.sn != a.sn {
		return nil
	}
	merged := &FragmentArrival{sn: a.sn, total: a.total, seenAt: a.seenAt, window: a.window, pages: make(map[int][]byte, len(a.pages)+len(o.pages))}
	for i, p := range a.pages {
		merged.pages[i] = p
	}
	for i, p := range o.pages {
		merged.pages[i] = p
	}
	// Keep the union on the receiver so later fragments build on it.
	a.pages = merged.pages
	if len(merged.pages) < merged.total {
		return nil
	}
	ordered := make([][]byte, merged.total)
	for i := 0; i < merged.total; i++ {
		p, ok := merged.pages[i]
		if !ok {
			return nil // total was optimistic; still missing a page
		}
		ordered[i] = p
	}
	merged.ordered = ordered
	return merged
}

func (a *FragmentArrival) Payload() []byte {
	var out []byte
	for _, p := range a.ordered {
		out = append(out, p...)
	}
	return out
}

// BaseDeparture implements the status-derivation table of spec.md §3
// for a Departure carrying an ordered list of byte fragments.
type BaseDeparture struct {
	sn        ID
	fragments [][]byte
	priority  int
	important bool
	triesLeft int
	lastTime  time.Time
}

// NewBaseDeparture creates a Departure with triesLeft initialized to
// exactly maxTries; "never sent" is tracked by a zero LastTime (see
// Status). maxTries should match the Config.MaxTries of the Dock this
// Departure will be enqueued in.
func NewBaseDeparture(sn ID, fragments [][]byte, priority int, important bool, maxTries int) *BaseDeparture {
	return &BaseDeparture{
		sn:        sn,
		fragments: fragments,
		priority:  priority,
		important: important,
		triesLeft: maxTries,
	}
}

func (d *BaseDeparture) SN() ID               { return d.sn }
func (d *BaseDeparture) Fragments() [][]byte  { return d.fragments }
func (d *BaseDeparture) Priority() int        { return d.priority }
func (d *BaseDeparture) Important() bool      { return d.important }
func (d *BaseDeparture) TriesLeft() int       { return d.triesLeft }
func (d *BaseDeparture) LastTime() time.Time  { return d.lastTime }

func (d *BaseDeparture) Touch(now time.Time) {
	d.lastTime = now
	if d.triesLeft > 0 {
		d.triesLeft--
	}
}

// Status derives the Departure's lifecycle. initialTries is accepted
// to satisfy the Departure interface but is not consulted: BaseDeparture
// tracks "never sent" directly via a zero LastTime rather than by
// comparing TriesLeft against the configured max, since TriesLeft is
// initialized to exactly maxTries and is decremented once per send
// (New counts as the first of maxTries attempts, matching the "exactly
// max_tries total sends, then Failed" reading of the retry-bound
// invariant).
func (d *BaseDeparture) Status(now time.Time, expires time.Duration, initialTries int) DepartureStatus {
	_ = initialTries
	switch {
	case len(d.fragments) == 0:
		return DepartureDone
	case d.lastTime.IsZero():
		return DepartureNew
	case now.Sub(d.lastTime) < expires:
		return DepartureWaiting
	case d.triesLeft > 0:
		return DepartureTimeout
	default:
		return DepartureFailed
	}
}

// ConsumeFragment advances past a send of the first fragment: if sent
// covers the whole fragment it is dropped, otherwise the fragment is
// shrunk by sent bytes (the partial-send/stream case). It is a no-op
// if there are no fragments left.
func (d *BaseDeparture) ConsumeFragment(sent int) {
	if len(d.fragments) == 0 || sent <= 0 {
		return
	}
	if sent >= len(d.fragments[0]) {
		d.fragments = d.fragments[1:]
		return
	}
	d.fragments[0] = d.fragments[0][sent:]
}

// PageAcker is an optional interface an Arrival may implement to
// acknowledge a single fragment by page index rather than the whole
// Departure at once.
type PageAcker interface {
	AckIndex() int
}

// CheckResponse removes fragments acknowledged by arrival. If arrival
// implements PageAcker and reports a valid index, only that fragment
// is removed; otherwise the response is treated as a wholesale
// acknowledgement and every fragment is cleared. It returns true once
// no fragments remain.
func (d *BaseDeparture) CheckResponse(arrival Arrival) bool {
	if pa, ok := arrival.(PageAcker); ok {
		if idx := pa.AckIndex(); idx >= 0 && idx < len(d.fragments) {
			d.fragments = append(d.fragments[:idx], d.fragments[idx+1:]...)
			return len(d.fragments) == 0
		}
	}
	d.fragments = nil
	return true
}
