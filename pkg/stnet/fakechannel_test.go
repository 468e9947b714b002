package stnet

import (
	"bytes"
	"testing"
)

func TestFakeChannelPipeRoundTrip(t *testing.T) {
	a := NewFakeChannel()
	b := NewFakeChannel()
	Pipe(a, b)

	if !a.Alive() || !b.Alive() {
		t.Fatal("expected both channels to be alive after Pipe")
	}

	n, err := a.Send([]byte("hello"), a.Remote())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes sent, got %d", n)
	}

	buf := make([]byte, 16)
	n, _, err = b.Receive(buf)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte("hello")) {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestFakeChannelCloseIsIdempotentAndFailsIO(t *testing.T) {
	a := NewFakeChannel()
	b := NewFakeChannel()
	Pipe(a, b)

	if err := a.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got: %v", err)
	}

	if _, err := a.Send([]byte("x"), a.Remote()); err != ErrClosedChannel {
		t.Fatalf("expected ErrClosedChannel, got %v", err)
	}
}

func TestFakeChannelReceiveEmptyIsZeroNotError(t *testing.T) {
	a := NewFakeChannel()
	b := NewFakeChannel()
	Pipe(a, b)

	buf := make([]byte, 16)
	n, _, err := a.Receive(buf)
	if err != nil || n != 0 {
		t.Fatalf("expected (0, nil) on empty queue, got (%d, %v)", n, err)
	}
}
