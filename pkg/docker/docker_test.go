package docker

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/r2northstar/startrek/pkg/conn"
	"github.com/r2northstar/startrek/pkg/dock"
	"github.com/r2northstar/startrek/pkg/ship"
	"github.com/r2northstar/startrek/pkg/stnet"
)

// testParser implements Parser with a minimal length-prefixed frame:
// [4-byte length][8-byte sn][2-byte index][2-byte total][payload].
type testParser struct{ window time.Duration }

func (p testParser) ParseArrivals(buffered []byte, now time.Time) ([]ship.Arrival, []byte) {
	var arrivals []ship.Arrival
	for {
		if len(buffered) < 4 {
			return arrivals, buffered
		}
		n := binary.BigEndian.Uint32(buffered[:4])
		if uint32(len(buffered)-4) < n {
			return arrivals, buffered
		}
		frame := buffered[4 : 4+n]
		buffered = buffered[4+n:]

		sn := ship.ID(frame[:8])
		index := binary.BigEndian.Uint16(frame[8:10])
		total := binary.BigEndian.Uint16(frame[10:12])
		payload := append([]byte(nil), frame[12:]...)
		arrivals = append(arrivals, ship.NewFragmentArrival(sn, int(index), int(total), payload, now, p.window))
	}
}

func (testParser) NewHeartbeat(now time.Time) ship.Departure {
	frame := encodeFrame("PINGPING", 0, 1, nil)
	return ship.NewBaseDeparture("PINGPING", [][]byte{frame}, ship.PriorityUrgent, false, 3)
}

func encodeFrame(sn ship.ID, index, total uint16, payload []byte) []byte {
	body := make([]byte, 12+len(payload))
	copy(body, []byte(sn))
	binary.BigEndian.PutUint16(body[8:10], index)
	binary.BigEndian.PutUint16(body[10:12], total)
	copy(body[12:], payload)
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out
}

func newTestDocker(t *testing.T) (*Docker, *stnet.FakeChannel, *recordingDockerDelegate) {
	t.Helper()
	a := stnet.NewFakeChannel()
	b := stnet.NewFakeChannel()
	stnet.Pipe(a, b)

	del := &recordingDockerDelegate{}
	c := conn.New(a.Remote(), a.Local(), a, conn.NopDelegate{}, conn.DefaultConfig(), zerolog.Nop())
	dk := New(c, testParser{window: time.Minute}, del, dock.DefaultConfig(), zerolog.Nop())
	return dk, b, del
}

type recordingDockerDelegate struct {
	NopDelegate
	arrivals []ship.Arrival
	sent     []ship.Departure
}

func (r *recordingDockerDelegate) OnArrival(_ *Docker, a ship.Arrival) { r.arrivals = append(r.arrivals, a) }
func (r *recordingDockerDelegate) OnSent(_ *Docker, d ship.Departure)  { r.sent = append(r.sent, d) }

// TestSinglePacketRoundTrip covers scenario S1: a monolithic frame
// delivered whole results in exactly one onArrival.
func TestSinglePacketRoundTrip(t *testing.T) {
	dk, peer, del := newTestDocker(t)
	now := time.Now()

	frame := encodeFrame("sn000001", 0, 1, []byte{0x01, 0x02, 0x03})
	peer.Send(frame, peer.Remote())

	// Simulate Hub draining the channel into the Connection, which
	// forwards to Docker.ProcessReceived via its delegate in the real
	// stack; here we call it directly since NopDelegate is used.
	buf := make([]byte, 1024)
	n, _, err := dk.connection.Channel().(*stnet.FakeChannel).Receive(buf)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	dk.ProcessReceived(now, buf[:n])

	if len(del.arrivals) != 1 {
		t.Fatalf("expected exactly one arrival, got %d", len(del.arrivals))
	}
	if string(del.arrivals[0].Payload()) != "\x01\x02\x03" {
		t.Fatalf("got payload %q", del.arrivals[0].Payload())
	}
}

// TestFragmentedReassembly covers scenario S2: three out-of-order
// fragments for sn=42 produce one onArrival with payload "abc".
func TestFragmentedReassembly(t *testing.T) {
	dk, _, del := newTestDocker(t)
	now := time.Now()

	sn := ship.ID("sn-42...")
	frames := [][]byte{
		encodeFrame(sn, 2, 3, []byte("c")),
		encodeFrame(sn, 0, 3, []byte("a")),
		encodeFrame(sn, 1, 3, []byte("b")),
	}
	var buffered []byte
	for _, f := range frames {
		buffered = append(buffered, f...)
	}
	dk.ProcessReceived(now, buffered)

	if len(del.arrivals) != 1 {
		t.Fatalf("expected exactly one arrival after reassembly, got %d", len(del.arrivals))
	}
	if string(del.arrivals[0].Payload()) != "abc" {
		t.Fatalf("got payload %q", del.arrivals[0].Payload())
	}
}

// TestTickSendsAndConsumesFragment exercises Docker.Tick draining the
// Dock and writing to the Connection.
func TestTickSendsAndConsumesFragment(t *testing.T) {
	dk, peer, _ := newTestDocker(t)
	now := time.Now()

	frame := encodeFrame("out00001", 0, 1, []byte("payload"))
	dep := ship.NewBaseDeparture("out00001", [][]byte{frame}, ship.PriorityNormal, false, 3)
	dk.SendShip(now, dep)

	dk.Tick(now)

	buf := make([]byte, 1024)
	n, _, err := peer.Receive(buf)
	if err != nil {
		t.Fatalf("receive on peer: %v", err)
	}
	if n != len(frame) {
		t.Fatalf("expected peer to receive %d bytes, got %d", len(frame), n)
	}
}
