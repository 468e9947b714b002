package plainship

import (
	"bytes"
	"testing"
	"time"
)

func TestFragmentAndReassemble(t *testing.T) {
	sn := NewSN()
	payload := bytes.Repeat([]byte("x"), 10)
	frames := Fragment(sn, payload, 4)
	if len(frames) != 3 {
		t.Fatalf("expected 3 fragments for 10 bytes at size 4, got %d", len(frames))
	}

	p := Parser{Window: time.Minute}
	var buffered []byte
	for _, f := range frames {
		buffered = append(buffered, f...)
	}
	arrivals, rest := p.ParseArrivals(buffered, time.Now())
	if len(rest) != 0 {
		t.Fatalf("expected no leftover bytes, got %d", len(rest))
	}
	if len(arrivals) != 3 {
		t.Fatalf("expected 3 parsed arrivals, got %d", len(arrivals))
	}

	merged := arrivals[0]
	for _, a := range arrivals[1:] {
		if m := merged.Assemble(a); m != nil {
			merged = m
		}
	}
	if !bytes.Equal(merged.Payload(), payload) {
		t.Fatalf("reassembled payload %q != original %q", merged.Payload(), payload)
	}
}

func TestLargePayloadRoundTripsCompressed(t *testing.T) {
	sn := NewSN()
	payload := bytes.Repeat([]byte("compressible-data-"), 100)
	frame := EncodeFrame(sn, 0, 1, payload)

	p := Parser{Window: time.Minute}
	arrivals, rest := p.ParseArrivals(frame, time.Now())
	if len(rest) != 0 {
		t.Fatalf("expected frame fully consumed, got %d leftover bytes", len(rest))
	}
	if len(arrivals) != 1 {
		t.Fatalf("expected one arrival, got %d", len(arrivals))
	}
	if !bytes.Equal(arrivals[0].Payload(), payload) {
		t.Fatalf("decompressed payload did not round-trip")
	}
}

func TestHeartbeatFrameParses(t *testing.T) {
	p := Parser{Window: time.Minute}
	hb := p.NewHeartbeat(time.Now())
	frags := hb.Fragments()
	if len(frags) != 1 {
		t.Fatalf("expected heartbeat to have one frame, got %d", len(frags))
	}
	arrivals, rest := p.ParseArrivals(frags[0], time.Now())
	if len(rest) != 0 || len(arrivals) != 1 {
		t.Fatalf("expected heartbeat frame to parse as a single arrival")
	}
}
