// Package plainship is a minimal concrete wire format demonstrating
// the docker.Parser boundary spec.md §1 keeps out of core scope: a
// length-prefixed frame carrying a UUID-derived SN, a fragment index/
// total, a one-byte compression flag, and an optional zstd-compressed
// payload. It exists for the demo binary and for core package tests;
// it is not itself part of the transport core.
package plainship

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/r2northstar/startrek/pkg/ship"
)

// Frame layout: [4-byte length][16-byte sn][2-byte index][2-byte
// total][1-byte flags][payload]. flags bit 0 set means the payload is
// zstd-compressed.
const (
	headerSize  = 16 + 2 + 2 + 1
	flagZstd    = 1 << 0
	compressMin = 256 // only compress payloads at least this large
)

// NewSN generates a fresh random SN, since real protocols assign their
// own and this demo format has none of its own framing for one.
func NewSN() ship.ID {
	u := uuid.New()
	return ship.ID(u[:])
}

// Parser implements docker.Parser for the plainship frame format.
type Parser struct {
	// Window is the reassembly expiry passed to each parsed Arrival.
	Window time.Duration
}

func (p Parser) ParseArrivals(buffered []byte, now time.Time) ([]ship.Arrival, []byte) {
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

		if len(frame) < headerSize {
			continue // malformed frame, drop it
		}
		sn := ship.ID(frame[:16])
		index := binary.BigEndian.Uint16(frame[16:18])
		total := binary.BigEndian.Uint16(frame[18:20])
		flags := frame[20]
		payload := frame[21:]

		if flags&flagZstd != 0 {
			decoded, err := decompress(payload)
			if err != nil {
				continue // corrupt frame, drop it
			}
			payload = decoded
		}

		arrivals = append(arrivals, ship.NewFragmentArrival(sn, int(index), int(total), payload, now, p.Window))
	}
}

func (Parser) NewHeartbeat(now time.Time) ship.Departure {
	frame := EncodeFrame(NewSN(), 0, 1, nil)
	return ship.NewBaseDeparture(NewSN(), [][]byte{frame}, ship.PriorityUrgent, false, 1)
}

// EncodeFrame builds one length-prefixed plainship frame. Payloads at
// least compressMin bytes are zstd-compressed when it shrinks them.
func EncodeFrame(sn ship.ID, index, total uint16, payload []byte) []byte {
	flags := byte(0)
	body := payload
	if len(payload) >= compressMin {
		if compressed, err := compress(payload); err == nil && len(compressed) < len(payload) {
			body = compressed
			flags = flagZstd
		}
	}

	out := make([]byte, 4+headerSize+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(headerSize+len(body)))
	copy(out[4:20], []byte(sn))
	binary.BigEndian.PutUint16(out[20:22], index)
	binary.BigEndian.PutUint16(out[22:24], total)
	out[24] = flags
	copy(out[25:], body)
	return out
}

// Fragment splits payload into Departure fragments no larger than
// maxFragmentSize, each independently framed with its page index and
// the overall fragment count.
func Fragment(sn ship.ID, payload []byte, maxFragmentSize int) [][]byte {
	if maxFragmentSize <= 0 {
		maxFragmentSize = len(payload)
	}
	if len(payload) == 0 {
		return [][]byte{EncodeFrame(sn, 0, 1, nil)}
	}
	total := (len(payload) + maxFragmentSize - 1) / maxFragmentSize
	frames := make([][]byte, 0, total)
	for i := 0; i < total; i++ {
		start := i * maxFragmentSize
		end := start + maxFragmentSize
		if end > len(payload) {
			end = len(payload)
		}
		frames = append(frames, EncodeFrame(sn, uint16(i), uint16(total), payload[start:end]))
	}
	return frames
}

// NewDeparture builds an important, Normal-priority Departure carrying
// payload split per Fragment.
func NewDeparture(payload []byte, maxFragmentSize, maxTries int) ship.Departure {
	sn := NewSN()
	frames := Fragment(sn, payload, maxFragmentSize)
	return ship.NewBaseDeparture(sn, frames, ship.PriorityNormal, true, maxTries)
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("plainship: decompress: %w", err)
	}
	return out, nil
}
