package mmal

import (
	"fmt"
	"time"
)

type Flags uint32

const (
	// FlagFrameEnd marks the buffer carrying the final segment of a frame.
	FlagFrameEnd Flags = 1 << iota
	FlagKeyFrame
	// FlagError is set by the driver when the payload is corrupt.
	FlagError
	FlagEOS
)

func (f Flags) Has(x Flags) bool {
	return f&x == x
}

// BufferState tracks which holder currently owns a Buffer.
type BufferState int

const (
	BufferFree BufferState = iota
	BufferHeld
	BufferInPort
)

func (s BufferState) String() string {
	switch s {
	case BufferFree:
		return "free"
	case BufferHeld:
		return "held"
	case BufferInPort:
		return "in_port"
	}
	return fmt.Sprintf("BufferState(%d)", int(s))
}

// Buffer is one pre-allocated region of a Pool. Data always has the full
// capacity of the pool; Length says how much of it is valid.
type Buffer struct {
	Data      []byte
	Length    int
	Flags     Flags
	Timestamp time.Duration

	pool  *Pool
	index int
	state BufferState
	port  *Port
}

// Bytes returns the filled part of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.Data[:b.Length]
}

func (b *Buffer) Cap() int {
	return len(b.Data)
}

// Pool returns the pool the buffer was allocated from.
func (b *Buffer) Pool() *Pool {
	return b.pool
}

// State is safe to call from any goroutine.
func (b *Buffer) State() BufferState {
	b.pool.mu.Lock()
	defer b.pool.mu.Unlock()
	return b.state
}

func (b *Buffer) Reset() {
	b.Length = 0
	b.Flags = 0
	b.Timestamp = 0
}

func (b *Buffer) String() string {
	return fmt.Sprintf("%s#%d", b.pool.name, b.index)
}
