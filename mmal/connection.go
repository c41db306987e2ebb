package mmal

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Policy decides what a connection does with a buffer the input cannot take.
type Policy int

const (
	// PolicyStall parks the buffer until the input returns one, so the
	// producer runs out of buffers and stalls.
	PolicyStall Policy = iota
	// PolicyDropNewest recycles the buffer straight back to the producer.
	PolicyDropNewest
)

func (p Policy) String() string {
	if p == PolicyDropNewest {
		return "drop-newest"
	}
	return "stall"
}

// Connection forwards every buffer produced by an output port to an input
// port of another component, recycling it once the input is done.
type Connection struct {
	name   string
	out    *Port
	in     *Port
	policy Policy

	mu        sync.Mutex
	connected bool
	enabled   bool
	pool      *Pool
	parked    []*Buffer
}

// Connect binds out to in. An input without a format inherits the output's.
func Connect(out, in *Port, policy Policy) (*Connection, error) {
	name := fmt.Sprintf("%v->%v", out, in)
	fields := log.Fields{"connection": name}
	switch {
	case out.dir != Output || in.dir != Input:
		return nil, errors.Wrapf(ErrPortMismatch, "connect %s: wrong directions", name)
	case out.component == in.component:
		return nil, errors.Wrapf(ErrPortMismatch, "connect %s: same component", name)
	case out.Connection() != nil || in.Connection() != nil:
		return nil, protocolError(errors.Wrapf(ErrAlreadyConnected, "connect %s", name), fields)
	case out.Enabled() || in.Enabled():
		return nil, protocolError(errors.Wrapf(ErrPortState, "connect %s: ports must be disabled", name), fields)
	}

	of := out.Format()
	if of.IsZero() {
		return nil, errors.Wrapf(ErrPortMismatch, "connect %s: output has no format", name)
	}
	if f := in.Format(); !f.IsZero() && !f.Compatible(of) {
		return nil, errors.Wrapf(ErrPortMismatch, "connect %s: %v cannot consume %v", name, f, of)
	}
	req, err := in.component.driver.CheckFormat(in, of)
	if err != nil {
		return nil, errors.Wrapf(ErrPortMismatch, "connect %s: %v", name, err)
	}
	in.setFormat(of, req)
	inReq := in.Requirements()
	out.raise(inReq.NumMin, inReq.SizeMin)

	c := &Connection{
		name:      name,
		out:       out,
		in:        in,
		policy:    policy,
		connected: true,
	}
	out.mu.Lock()
	out.conn = c
	out.mu.Unlock()
	in.mu.Lock()
	in.conn = c
	in.mu.Unlock()

	log.WithFields(fields).Debugf("Connected (%v, %d buffers)", policy, out.BufferNum())
	return c, nil
}

func (c *Connection) String() string {
	return c.name
}

func (c *Connection) Output() *Port {
	return c.out
}

func (c *Connection) Input() *Port {
	return c.in
}

func (c *Connection) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Pool returns the pool feeding the output port while enabled.
func (c *Connection) Pool() *Pool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool
}

func (c *Connection) fields() log.Fields {
	return log.Fields{"connection": c.name}
}

// Enable allocates the connection pool, enables both ports and primes the
// output with every buffer of the pool.
func (c *Connection) Enable() error {
	c.mu.Lock()
	if !c.connected || c.enabled {
		c.mu.Unlock()
		return protocolError(errors.Wrapf(ErrPortState, "enable %s: connected=%v enabled=%v", c.name, c.connected, c.enabled), c.fields())
	}
	pool, err := c.out.CreatePool(c.out.BufferNum(), c.out.BufferSize())
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.pool = pool
	c.enabled = true
	c.mu.Unlock()

	if err := c.in.enable(c.inputDone); err != nil {
		c.rollback()
		return err
	}
	if err := c.out.enable(c.outputDone); err != nil {
		c.rollback()
		return err
	}

	primed := 0
	for c.replenish() {
		primed++
	}
	log.WithFields(c.fields()).Debugf("Enabled, primed %d buffers", primed)
	return nil
}

func (c *Connection) rollback() {
	c.mu.Lock()
	c.enabled = false
	c.mu.Unlock()
	c.out.disable()
	c.in.disable()
	c.pool.Destroy()
	c.mu.Lock()
	c.pool = nil
	c.mu.Unlock()
}

// replenish gives the producer one more empty buffer. It reports false when
// the pool has nothing free, which is how backpressure reaches the producer.
func (c *Connection) replenish() bool {
	c.mu.Lock()
	enabled, pool := c.enabled, c.pool
	c.mu.Unlock()
	if !enabled {
		return false
	}
	b, ok := pool.Acquire()
	if !ok {
		return false
	}
	if err := c.out.Submit(b); err != nil {
		pool.Release(b)
		return false
	}
	return true
}

// outputDone runs on the output port worker for every produced buffer.
func (c *Connection) outputDone(p *Port, b *Buffer) {
	c.mu.Lock()
	if !c.enabled || b.Length == 0 {
		c.mu.Unlock()
		b.pool.Release(b)
		return
	}
	if len(c.parked) > 0 {
		c.park(b)
		c.mu.Unlock()
		return
	}
	err := c.in.Submit(b)
	switch {
	case err == nil:
		connectionBuffers.WithLabelValues(c.name, "forwarded").Inc()
		c.mu.Unlock()
	case errors.Is(err, ErrPortFull) && c.policy == PolicyStall:
		c.park(b)
		c.mu.Unlock()
	case errors.Is(err, ErrPortFull):
		connectionBuffers.WithLabelValues(c.name, "dropped").Inc()
		c.mu.Unlock()
		b.pool.Release(b)
		c.replenish()
	default:
		c.mu.Unlock()
		log.WithFields(c.fields()).Warnf("Forwarding failed: %v", err)
		b.pool.Release(b)
	}
}

// park must be called with mu held.
func (c *Connection) park(b *Buffer) {
	c.parked = append(c.parked, b)
	connectionBuffers.WithLabelValues(c.name, "stalled").Inc()
}

// inputDone runs on the input port worker once the consumer is finished.
func (c *Connection) inputDone(p *Port, b *Buffer) {
	b.pool.Release(b)

	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return
	}
	if len(c.parked) > 0 {
		next := c.parked[0]
		if err := c.in.Submit(next); err == nil {
			c.parked = c.parked[1:]
			connectionBuffers.WithLabelValues(c.name, "forwarded").Inc()
		} else if !errors.Is(err, ErrPortFull) {
			c.parked = c.parked[1:]
			next.pool.Release(next)
		}
	}
	c.mu.Unlock()
	c.replenish()
}

// Disable stops forwarding, drains output then input and frees the pool.
func (c *Connection) Disable() error {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return nil
	}
	c.enabled = false
	c.mu.Unlock()

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	keep(c.out.disable())
	keep(c.in.disable())

	c.mu.Lock()
	parked := c.parked
	c.parked = nil
	pool := c.pool
	c.mu.Unlock()
	for _, b := range parked {
		b.pool.Release(b)
	}
	if err := pool.Destroy(); err != nil {
		keep(err)
	} else {
		c.mu.Lock()
		c.pool = nil
		c.mu.Unlock()
	}
	if first != nil {
		return errors.Wrapf(first, "disable %s", c.name)
	}
	log.WithFields(c.fields()).Debugf("Disabled")
	return nil
}

// Disconnect unbinds the ports. The connection and both ports must be
// disabled first.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enabled || c.out.Enabled() || c.in.Enabled() {
		return protocolError(errors.Wrapf(ErrActiveConnection, "disconnect %s", c.name), c.fields())
	}
	if !c.connected {
		return nil
	}
	c.connected = false
	for _, p := range []*Port{c.out, c.in} {
		p.mu.Lock()
		p.conn = nil
		p.mu.Unlock()
	}
	log.WithFields(c.fields()).Debugf("Disconnected")
	return nil
}
