package gate

import (
	"net/netip"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/r2northstar/startrek/pkg/conn"
	"github.com/r2northstar/startrek/pkg/dock"
	"github.com/r2northstar/startrek/pkg/docker"
	"github.com/r2northstar/startrek/pkg/plainship"
	"github.com/r2northstar/startrek/pkg/stnet"
)

func mustAddr(s string) netip.AddrPort {
	a, err := netip.ParseAddrPort(s)
	if err != nil {
		panic(err)
	}
	return a
}

func newTestConnection(remote, local netip.AddrPort) *conn.Connection {
	ch := stnet.NewFakeChannel()
	ch.Bind(local)
	ch.Connect(remote)
	return conn.New(remote, local, ch, conn.NopDelegate{}, conn.DefaultConfig(), zerolog.Nop())
}

// TestDockerStatusMapping exercises dockerStatus's full conn.State ->
// docker.Status table from spec.md §4.7, including the StateDefault ->
// StatusInit arm.
func TestDockerStatusMapping(t *testing.T) {
	cases := []struct {
		state conn.State
		want  docker.Status
	}{
		{conn.StateDefault, docker.StatusInit},
		{conn.StatePreparing, docker.StatusPreparing},
		{conn.StateReady, docker.StatusReady},
		{conn.StateMaintaining, docker.StatusReady},
		{conn.StateExpired, docker.StatusReady},
		{conn.StateError, docker.StatusError},
	}
	for _, tc := range cases {
		if got := dockerStatus(tc.state); got != tc.want {
			t.Errorf("dockerStatus(%s) = %s, want %s", tc.state, got, tc.want)
		}
	}
}

// TestOnStateChangedUpdatesDockerStatus drives the mapping through
// Gate.OnStateChanged end to end, rather than calling dockerStatus
// directly.
func TestOnStateChangedUpdatesDockerStatus(t *testing.T) {
	remote := mustAddr("10.0.0.1:9000")
	local := mustAddr("10.0.0.2:9001")
	c := newTestConnection(remote, local)

	g := New(DefaultConfig(), nil, zerolog.Nop())
	dk := g.CreateDocker(remote, local, c, plainship.Parser{Window: time.Minute}, docker.NopDelegate{})

	g.OnStateChanged(c, conn.StateDefault, conn.StateError)
	if dk.Status() != docker.StatusError {
		t.Fatalf("expected StatusError, got %s", dk.Status())
	}

	g.OnStateChanged(c, conn.StateError, conn.StateDefault)
	if dk.Status() != docker.StatusInit {
		t.Fatalf("expected StatusInit, got %s", dk.Status())
	}

	g.OnStateChanged(c, conn.StateDefault, conn.StateReady)
	if dk.Status() != docker.StatusReady {
		t.Fatalf("expected StatusReady, got %s", dk.Status())
	}
}

// prefixSniffer recognizes a connection's protocol once the buffered
// advance-party bytes start with a fixed prefix.
type prefixSniffer struct {
	prefix string
}

func (s prefixSniffer) TryIdentify(buffered [][]byte) (DockerFactory, bool) {
	var total []byte
	for _, b := range buffered {
		total = append(total, b...)
	}
	if len(total) < len(s.prefix) || string(total[:len(s.prefix)]) != s.prefix {
		return nil, false
	}
	return func(c *conn.Connection, advanceParty [][]byte) (*docker.Docker, error) {
		return docker.New(c, plainship.Parser{Window: time.Minute}, docker.NopDelegate{}, dock.DefaultConfig(), zerolog.Nop()), nil
	}, true
}

// TestBufferAdvancePartyUntilSniffed covers bufferAdvanceParty: bytes
// accumulate with no Docker created until the Sniffer recognizes the
// protocol, at which point the Docker is created and bound.
func TestBufferAdvancePartyUntilSniffed(t *testing.T) {
	remote := mustAddr("10.0.0.1:9000")
	local := mustAddr("10.0.0.2:9001")
	c := newTestConnection(remote, local)

	g := New(DefaultConfig(), prefixSniffer{"PING"}, zerolog.Nop())

	g.OnReceived(c, []byte("PI"))
	if _, ok := g.Docker(remote, local); ok {
		t.Fatalf("docker should not exist before the sniffer recognizes the prefix")
	}

	g.OnReceived(c, []byte("NG"))
	dk, ok := g.Docker(remote, local)
	if !ok {
		t.Fatalf("expected docker to be created once the sniffer recognized %q", "PING")
	}
	if dk.Connection() != c {
		t.Fatalf("docker bound to the wrong connection")
	}
}

// recordingSniffer never identifies anything; it just records the
// buffered length it was called with, to verify bufferAdvanceParty's
// cap.
type recordingSniffer struct {
	lastLen int
}

func (s *recordingSniffer) TryIdentify(buffered [][]byte) (DockerFactory, bool) {
	s.lastLen = len(buffered)
	return nil, false
}

// TestAdvancePartyCap covers the cap on how many chunks
// bufferAdvanceParty retains before evicting the oldest.
func TestAdvancePartyCap(t *testing.T) {
	remote := mustAddr("10.0.0.1:9000")
	local := mustAddr("10.0.0.2:9001")
	c := newTestConnection(remote, local)

	cfg := DefaultConfig()
	cfg.AdvancePartyCap = 2
	sniff := &recordingSniffer{}
	g := New(cfg, sniff, zerolog.Nop())

	for i := 0; i < 5; i++ {
		g.OnReceived(c, []byte{byte(i)})
	}
	if sniff.lastLen != 2 {
		t.Fatalf("expected buffered advance party capped at 2, got %d", sniff.lastLen)
	}
}
