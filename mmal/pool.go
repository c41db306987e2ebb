package mmal

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MaxPoolBytes bounds the memory a single pool may reserve, standing in for
// the memory split reserved for the multimedia layer.
var MaxPoolBytes int64 = 256 << 20

// PoolStats is a snapshot of buffer ownership. Free+InPort+Held == Total.
type PoolStats struct {
	Total  int `json:"total"`
	Free   int `json:"free"`
	InPort int `json:"in_port"`
	Held   int `json:"held"`
}

// Pool owns a fixed set of equally sized buffers for the lifetime of a
// pipeline. The free list is shared between the control goroutine and port
// workers, so every ownership change goes through mu.
type Pool struct {
	name string
	size int
	port *Port

	mu        sync.Mutex
	buffers   []*Buffer
	free      []*Buffer
	inPort    int
	held      int
	destroyed bool
}

func NewPool(name string, count, size int) (*Pool, error) {
	if count <= 0 || size <= 0 {
		return nil, errors.Wrapf(ErrAllocation, "pool %s: invalid geometry %d x %d bytes", name, count, size)
	}
	if int64(size) > MaxPoolBytes/int64(count) {
		return nil, errors.Wrapf(ErrAllocation, "pool %s: %d x %d bytes exceeds limit of %d bytes", name, count, size, MaxPoolBytes)
	}
	p := &Pool{
		name:    name,
		size:    size,
		buffers: make([]*Buffer, count),
		free:    make([]*Buffer, 0, count),
	}
	for i := range p.buffers {
		b := &Buffer{
			Data:  make([]byte, size),
			pool:  p,
			index: i,
		}
		p.buffers[i] = b
		p.free = append(p.free, b)
	}
	p.publish()
	log.WithField("pool", name).Debugf("Allocated %d buffers of %d bytes", count, size)
	return p, nil
}

func (p *Pool) Name() string {
	return p.name
}

// Count returns the fixed number of buffers in the pool.
func (p *Pool) Count() int {
	return len(p.buffers)
}

// BufferSize returns the capacity of each buffer.
func (p *Pool) BufferSize() int {
	return p.size
}

// Acquire takes a free buffer without blocking. It reports false when none is
// free, leaving the caller to retry later or drop.
func (p *Pool) Acquire() (*Buffer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed || len(p.free) == 0 {
		return nil, false
	}
	b := p.free[0]
	p.free = p.free[1:]
	b.state = BufferHeld
	p.held++
	p.publish()
	return b, true
}

// Release returns a buffer held by the application to the free list.
func (p *Pool) Release(b *Buffer) error {
	if b == nil || b.pool != p {
		return protocolError(errors.Wrapf(ErrForeignBuffer, "release to pool %s", p.name), log.Fields{"pool": p.name})
	}
	p.mu.Lock()
	if b.state != BufferHeld {
		state := b.state
		p.mu.Unlock()
		return protocolError(errors.Wrapf(ErrBufferState, "release %v while %v", b, state), log.Fields{"pool": p.name})
	}
	b.Reset()
	b.state = BufferFree
	p.held--
	p.free = append(p.free, b)
	p.publish()
	p.mu.Unlock()
	return nil
}

// toPort moves a held buffer into a port.
func (p *Pool) toPort(b *Buffer, port *Port) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b.state != BufferHeld {
		return errors.Wrapf(ErrBufferState, "submit %v to %v while %v", b, port, b.state)
	}
	b.state = BufferInPort
	b.port = port
	p.held--
	p.inPort++
	p.publish()
	return nil
}

// fromPort hands a buffer coming back from a port to the application.
func (p *Pool) fromPort(b *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b.state = BufferHeld
	b.port = nil
	p.inPort--
	p.held++
	p.publish()
}

// Destroy frees the pool. Every buffer must have been released first.
func (p *Pool) Destroy() error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return nil
	}
	if p.inPort+p.held > 0 {
		err := errors.Wrapf(ErrPoolInUse, "pool %s: %d buffers in port, %d held", p.name, p.inPort, p.held)
		p.mu.Unlock()
		return err
	}
	p.destroyed = true
	p.free = nil
	p.mu.Unlock()

	if p.port != nil {
		p.port.detachPool(p)
	}
	for _, state := range poolStates {
		poolBuffers.DeleteLabelValues(p.name, state)
	}
	log.WithField("pool", p.name).Debugf("Pool destroyed")
	return nil
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats()
}

func (p *Pool) stats() PoolStats {
	return PoolStats{
		Total:  len(p.buffers),
		Free:   len(p.free),
		InPort: p.inPort,
		Held:   p.held,
	}
}

// publish must be called with mu held.
func (p *Pool) publish() {
	s := p.stats()
	poolBuffers.WithLabelValues(p.name, "free").Set(float64(s.Free))
	poolBuffers.WithLabelValues(p.name, "in_port").Set(float64(s.InPort))
	poolBuffers.WithLabelValues(p.name, "held").Set(float64(s.Held))
}
