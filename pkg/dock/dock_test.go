package dock

import (
	"testing"
	"time"

	"github.com/r2northstar/startrek/pkg/ship"
)

func cfg() Config {
	return Config{Expires: 10 * time.Second, ReassemblyMs: time.Minute, MaxTries: 3}
}

// TestPriorityMonotonicity covers invariant 3: smaller priority drains
// first.
func TestPriorityMonotonicity(t *testing.T) {
	d := New(cfg())
	now := time.Now()

	a := ship.NewBaseDeparture("a", [][]byte{[]byte("a")}, 0, false, 3)
	b := ship.NewBaseDeparture("b", [][]byte{[]byte("b")}, 1, false, 3)
	d.AddDeparture(now, b)
	d.AddDeparture(now, a)

	got := d.NextDeparture(now)
	if got == nil || got.SN() != "a" {
		t.Fatalf("expected priority 0 departure first, got %v", got)
	}
}

// TestFIFOWithinPriority covers invariant 4.
func TestFIFOWithinPriority(t *testing.T) {
	d := New(cfg())
	now := time.Now()

	a := ship.NewBaseDeparture("a", [][]byte{[]byte("a")}, 0, false, 3)
	b := ship.NewBaseDeparture("b", [][]byte{[]byte("b")}, 0, false, 3)
	d.AddDeparture(now, a)
	d.AddDeparture(now, b)

	first := d.NextDeparture(now)
	second := d.NextDeparture(now)
	if first.SN() != "a" || second.SN() != "b" {
		t.Fatalf("expected FIFO order a,b; got %v,%v", first.SN(), second.SN())
	}
}

// TestImportantRetryBound covers invariant 5 and scenario S3.
func TestImportantRetryBound(t *testing.T) {
	c := cfg()
	d := New(c)
	now := time.Now()

	dep := ship.NewBaseDeparture("sn-7", [][]byte{[]byte("f")}, 0, true, c.MaxTries)
	d.AddDeparture(now, dep)

	var tries int
	cur := now
	for i := 0; i < 10; i++ {
		got := d.NextDeparture(cur)
		if got == nil {
			break
		}
		tries++
		cur = cur.Add(c.Expires + time.Second)
	}
	if tries != c.MaxTries {
		t.Fatalf("expected exactly %d tries, got %d", c.MaxTries, tries)
	}
	if got := dep.Status(cur, c.Expires, c.MaxTries); got != ship.DepartureFailed {
		t.Fatalf("expected Failed after exhausting tries, got %v", got)
	}
}

// TestDisposableOneShot covers invariant 6.
func TestDisposableOneShot(t *testing.T) {
	d := New(cfg())
	now := time.Now()

	dep := ship.NewBaseDeparture("sn-d", [][]byte{[]byte("f")}, 0, false, 3)
	d.AddDeparture(now, dep)

	first := d.NextDeparture(now)
	if first == nil {
		t.Fatal("expected disposable departure to be returned once")
	}
	second := d.NextDeparture(now.Add(time.Hour))
	if second != nil {
		t.Fatalf("expected disposable departure to be gone after one send, got %v", second)
	}
}

// TestDuplicateSendRejection covers invariant 7.
func TestDuplicateSendRejection(t *testing.T) {
	d := New(cfg())
	now := time.Now()

	dep1 := ship.NewBaseDeparture("dup", [][]byte{[]byte("a")}, 0, true, 3)
	dep2 := ship.NewBaseDeparture("dup", [][]byte{[]byte("b")}, 0, true, 3)

	if !d.AddDeparture(now, dep1) {
		t.Fatal("first add should succeed")
	}
	if d.AddDeparture(now, dep2) {
		t.Fatal("second add with same un-done SN should be rejected")
	}
}

// TestDuplicateResponseAbsorbed covers scenario S5.
func TestDuplicateResponseAbsorbed(t *testing.T) {
	d := New(cfg())
	now := time.Now()

	dep := ship.NewBaseDeparture("sn-9", [][]byte{[]byte("f")}, 0, true, 3)
	d.AddDeparture(now, dep)

	ack := fakeAckArrival{sn: "sn-9"}
	completed, ok := d.CheckResponse(now, ack)
	if !ok || completed.SN() != "sn-9" {
		t.Fatalf("expected first response to complete departure, got %v ok=%v", completed, ok)
	}

	later := now.Add(5 * time.Second)
	if _, ok := d.CheckResponse(later, ack); ok {
		t.Fatal("expected duplicate response to not complete anything")
	}
	if !d.IsDuplicateResponse(ack) {
		t.Fatal("expected duplicate response to be recognized via tombstone")
	}
}

// TestPriorityPreemption covers scenario S6.
func TestPriorityPreemption(t *testing.T) {
	d := New(cfg())
	now := time.Now()

	d1 := ship.NewBaseDeparture("d1", [][]byte{[]byte("1")}, 0, false, 3)
	d2 := ship.NewBaseDeparture("d2", [][]byte{[]byte("2")}, -1, false, 3)
	d3 := ship.NewBaseDeparture("d3", [][]byte{[]byte("3")}, 0, false, 3)

	d.AddDeparture(now, d1)
	d.AddDeparture(now, d2)
	d.AddDeparture(now, d3)

	order := []ship.ID{
		d.NextDeparture(now).SN(),
		d.NextDeparture(now).SN(),
		d.NextDeparture(now).SN(),
	}
	want := []ship.ID{"d2", "d1", "d3"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

type fakeAckArrival struct{ sn ship.ID }

func (f fakeAckArrival) SN() ship.ID                    { return f.sn }
func (fakeAckArrival) Status(time.Time) ship.ArrivalStatus { return ship.ArrivalAssembling }
func (fakeAckArrival) Assemble(ship.Arrival) ship.Arrival  { return nil }
func (fakeAckArrival) Payload() []byte                  { return nil }
func (fakeAckArrival) AckIndex() int                    { return -1 }
