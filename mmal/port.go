package mmal

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"stillcam/util"
)

type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "in"
	}
	return "out"
}

// BufferHandler receives every buffer a port hands back to the application.
// It runs on the port's worker goroutine, never on the driver's notification
// path. The handler owns the buffer and must either resubmit or release it.
type BufferHandler func(p *Port, b *Buffer)

// PortSpec declares a port of a driver.
type PortSpec struct {
	Direction    Direction
	Format       Format
	Requirements Requirements
}

// Port is a directional endpoint of a Component through which buffers flow.
type Port struct {
	component *Component
	index     int
	dir       Direction
	name      string

	mu         sync.Mutex
	format     Format
	req        Requirements
	bufferNum  int
	bufferSize int
	enabled    bool
	conn       *Connection
	pool       *Pool

	// inFlight holds buffers owned by the driver. idle is closed whenever
	// inFlight is empty.
	inFlight map[*Buffer]struct{}
	idle     chan struct{}
	queue    chan *Buffer
	stopped  *util.Event
	// submitting counts Submit calls still on their way to the driver.
	submitting sync.WaitGroup
}

func newPort(c *Component, index int, spec PortSpec) *Port {
	p := &Port{
		component: c,
		index:     index,
		dir:       spec.Direction,
		name:      fmt.Sprintf("%s:%s%d", c.name, spec.Direction, index),
		inFlight:  make(map[*Buffer]struct{}),
		idle:      closedChan(),
	}
	p.setFormat(spec.Format, spec.Requirements)
	return p
}

func closedChan() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

func (p *Port) Name() string {
	return p.name
}

func (p *Port) String() string {
	return p.name
}

func (p *Port) Index() int {
	return p.index
}

func (p *Port) Direction() Direction {
	return p.dir
}

func (p *Port) Component() *Component {
	return p.component
}

func (p *Port) Format() Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.format
}

func (p *Port) Requirements() Requirements {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.req
}

// BufferNum is the negotiated number of buffers for the port.
func (p *Port) BufferNum() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bufferNum
}

// BufferSize is the negotiated buffer capacity for the port.
func (p *Port) BufferSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bufferSize
}

func (p *Port) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// InFlight returns how many buffers the driver currently holds.
func (p *Port) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

// Pool returns the pool created on this port, if any.
func (p *Port) Pool() *Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pool
}

func (p *Port) Connection() *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

func (p *Port) fields() log.Fields {
	return log.Fields{"port": p.name}
}

func (p *Port) setFormat(f Format, req Requirements) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.format = f
	p.req = req
	p.bufferNum = maxInt(req.NumRecommended, req.NumMin)
	p.bufferSize = maxInt(req.SizeRecommended, req.SizeMin)
}

// SetBufferRequirements overrides the negotiated buffer count and size.
// Values below the port minimum are raised to it; zero keeps the current value.
func (p *Port) SetBufferRequirements(num, size int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled || p.pool != nil {
		return errors.Wrapf(ErrPortState, "port %s: buffer requirements are fixed once enabled or pooled", p.name)
	}
	if num > 0 {
		p.bufferNum = maxInt(num, p.req.NumMin)
	}
	if size > 0 {
		p.bufferSize = maxInt(size, p.req.SizeMin)
	}
	return nil
}

// raise lifts the negotiated requirements; it never lowers them.
func (p *Port) raise(num, size int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bufferNum = maxInt(p.bufferNum, num)
	p.bufferSize = maxInt(p.bufferSize, size)
}

// CreatePool allocates the pool that feeds this port. count and size are
// raised to the port's minimum requirements.
func (p *Port) CreatePool(count, size int) (*Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil {
		return nil, protocolError(errors.Wrapf(ErrPortState, "port %s already has a pool", p.name), p.fields())
	}
	count = maxInt(count, p.req.NumMin)
	size = maxInt(size, p.req.SizeMin)
	pool, err := NewPool(p.name, count, size)
	if err != nil {
		return nil, err
	}
	pool.port = p
	p.pool = pool
	p.bufferNum = count
	p.bufferSize = size
	return pool, nil
}

func (p *Port) detachPool(pool *Pool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool == pool {
		p.pool = nil
	}
}

// Enable starts the flow of buffers on the port. h is invoked for every
// buffer the driver completes; a nil handler releases buffers to their pool.
// A connected port is enabled through its Connection.
func (p *Port) Enable(h BufferHandler) error {
	if conn := p.Connection(); conn != nil {
		return protocolError(errors.Wrapf(ErrActiveConnection, "enable %s: connected by %s", p.name, conn), p.fields())
	}
	return p.enable(h)
}

func (p *Port) enable(h BufferHandler) error {
	if s := p.component.State(); s != ComponentReady {
		return protocolError(errors.Wrapf(ErrPortState, "enable %s: component is %v", p.name, s), p.fields())
	}
	p.mu.Lock()
	if p.enabled {
		p.mu.Unlock()
		return protocolError(errors.Wrapf(ErrPortState, "enable %s: already enabled", p.name), p.fields())
	}
	depth := maxInt(p.bufferNum, 1)
	p.mu.Unlock()

	if err := p.component.driver.Enable(p); err != nil {
		return errors.Wrapf(err, "enable %s", p.name)
	}

	p.mu.Lock()
	p.enabled = true
	p.queue = make(chan *Buffer, depth)
	p.stopped = util.NewEvent()
	if len(p.inFlight) == 0 {
		p.idle = closedChan()
	}
	go p.work(p.queue, h, p.stopped)
	p.mu.Unlock()

	log.WithFields(p.fields()).Debugf("Port enabled with %d buffers of %d bytes", depth, p.BufferSize())
	return nil
}

func (p *Port) work(q <-chan *Buffer, h BufferHandler, stopped *util.Event) {
	defer stopped.Notify()
	for b := range q {
		portBuffers.WithLabelValues(p.name, "completed").Inc()
		if h == nil {
			b.pool.Release(b)
			continue
		}
		h(p, b)
	}
}

// Submit hands a buffer owned by the caller to the driver.
func (p *Port) Submit(b *Buffer) error {
	if b == nil || b.pool == nil {
		return protocolError(errors.Wrapf(ErrForeignBuffer, "submit to %s", p.name), p.fields())
	}
	p.mu.Lock()
	if !p.enabled {
		p.mu.Unlock()
		return errors.Wrapf(ErrPortState, "submit to disabled port %s", p.name)
	}
	if len(p.inFlight)+len(p.queue) >= cap(p.queue) {
		p.mu.Unlock()
		return errors.Wrapf(ErrPortFull, "port %s: %d buffers outstanding", p.name, cap(p.queue))
	}
	if err := b.pool.toPort(b, p); err != nil {
		p.mu.Unlock()
		return protocolError(err, p.fields())
	}
	if len(p.inFlight) == 0 {
		p.idle = make(chan struct{})
	}
	p.inFlight[b] = struct{}{}
	p.submitting.Add(1)
	p.mu.Unlock()

	err := p.component.driver.Submit(p, b)
	p.submitting.Done()
	if err != nil {
		p.mu.Lock()
		if _, ok := p.inFlight[b]; ok {
			p.remove(b)
			b.pool.fromPort(b)
		}
		p.mu.Unlock()
		return errors.Wrapf(err, "submit to %s", p.name)
	}
	portBuffers.WithLabelValues(p.name, "submitted").Inc()
	return nil
}

// remove must be called with mu held.
func (p *Port) remove(b *Buffer) {
	delete(p.inFlight, b)
	if len(p.inFlight) == 0 {
		close(p.idle)
	}
}

// Complete is called by the driver, from its own notification context, when
// it is done with a buffer. It only moves ownership and queues the buffer for
// the port worker, so it never blocks.
func (p *Port) Complete(b *Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inFlight[b]; !ok {
		protocolError(errors.Wrapf(ErrBufferState, "%s returned %v it does not hold", p.name, b), p.fields())
		return
	}
	p.remove(b)
	b.pool.fromPort(b)
	if p.queue == nil {
		log.WithFields(p.fields()).Warnf("Reclaimed %v after drain gave up on it", b)
		b.pool.Release(b)
		return
	}
	// Submit keeps inFlight+queued within the queue capacity.
	p.queue <- b
}

// Disable stops the port and waits for every in-flight buffer to come back.
// Disabling a disabled port is a no-op.
func (p *Port) Disable() error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn != nil && conn.Enabled() {
		return protocolError(errors.Wrapf(ErrActiveConnection, "disable %s: connection %s is enabled", p.name, conn), p.fields())
	}
	return p.disable()
}

func (p *Port) disable() error {
	p.mu.Lock()
	if !p.enabled {
		p.mu.Unlock()
		return nil
	}
	p.enabled = false
	idle, stopped := p.idle, p.stopped
	p.mu.Unlock()

	// A buffer reaching the driver after the flush would never come back.
	p.submitting.Wait()
	drv := p.component.driver
	drv.Flush(p)

	timeout := p.component.drainTimeout()
	deadline := time.Now().Add(timeout)
	t := time.NewTimer(timeout)
	defer t.Stop()

	var err error
	select {
	case <-idle:
	case <-t.C:
		p.mu.Lock()
		lost := len(p.inFlight)
		for b := range p.inFlight {
			log.WithFields(p.fields()).Errorf("Buffer %v lost in driver", b)
		}
		p.mu.Unlock()
		drainTimeouts.WithLabelValues(p.name).Inc()
		err = errors.Wrapf(ErrDrainTimeout, "port %s: %d buffers not returned within %v", p.name, lost, timeout)
	}

	p.mu.Lock()
	close(p.queue)
	p.queue = nil
	p.mu.Unlock()

	if err == nil && !stopped.WaitTimeout(time.Until(deadline)) {
		drainTimeouts.WithLabelValues(p.name).Inc()
		err = errors.Wrapf(ErrDrainTimeout, "port %s: buffer handler still busy after %v", p.name, timeout)
	}
	drv.Disable(p)

	if err != nil {
		log.WithFields(p.fields()).Errorf("Port disabled uncleanly: %v", err)
		return err
	}
	log.WithFields(p.fields()).Debugf("Port disabled")
	return nil
}

// TriggerCapture asks the driver for one still. The port must be enabled and
// primed with at least one submitted buffer.
func (p *Port) TriggerCapture() error {
	p.mu.Lock()
	enabled, primed := p.enabled, len(p.inFlight)
	p.mu.Unlock()
	if !enabled {
		return protocolError(errors.Wrapf(ErrPortState, "capture on %s: port disabled", p.name), p.fields())
	}
	if primed == 0 {
		return protocolError(errors.Wrapf(ErrPortState, "capture on %s: no buffers submitted", p.name), p.fields())
	}
	c, ok := p.component.driver.(Capturer)
	if !ok {
		return protocolError(errors.Wrapf(ErrPortState, "capture on %s: not supported", p.name), p.fields())
	}
	if err := c.Capture(p); err != nil {
		return errors.Wrapf(err, "capture on %s", p.name)
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
