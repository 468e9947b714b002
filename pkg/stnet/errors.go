package stnet

import "errors"

// Error taxonomy from spec.md §7. WouldBlock and Timeout are masked at
// the Channel boundary — callers of Read/Receive/Send never observe
// them. The masking logic (masked in udp.go) recognizes the OS-level
// deadline and would-block errors directly and does not compare
// against these two values.
var (
	ErrClosedChannel   = errors.New("stnet: channel closed")
	ErrSocket          = errors.New("stnet: socket error")
	ErrWouldBlock      = errors.New("stnet: would block")
	ErrTimeout         = errors.New("stnet: timeout")
	ErrIllegalArgument = errors.New("stnet: illegal argument")
)
