package mmal

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// fakeDriver holds submitted buffers until the test completes them.
type fakeDriver struct {
	specs []PortSpec
	req   Requirements

	// auto completes every submitted buffer straight away.
	auto bool
	// stuck ignores Flush, simulating hardware that never gives buffers back.
	stuck bool

	mu       sync.Mutex
	held     map[*Port][]*Buffer
	captures int
	closed   bool
	params   interface{}
}

func newFakeDriver(specs ...PortSpec) *fakeDriver {
	return &fakeDriver{
		specs: specs,
		req:   Requirements{NumMin: 1, SizeMin: 16, NumRecommended: 2},
		held:  make(map[*Port][]*Buffer),
	}
}

func (d *fakeDriver) Ports() []PortSpec { return d.specs }

func (d *fakeDriver) CheckFormat(p *Port, f Format) (Requirements, error) {
	if f.FrameSize() == 0 {
		return Requirements{}, errors.Wrapf(ErrUnsupportedFormat, "%v", f)
	}
	req := d.req
	if req.SizeRecommended == 0 {
		req.SizeRecommended = f.FrameSize()
	}
	return req, nil
}

func (d *fakeDriver) Configure(params interface{}) error {
	if v, ok := params.(int); ok && (v < -100 || v > 100) {
		return errors.Wrapf(ErrInvalidParameter, "value %d out of range", v)
	}
	d.mu.Lock()
	d.params = params
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Enable(p *Port) error { return nil }

func (d *fakeDriver) Submit(p *Port, b *Buffer) error {
	if d.auto {
		go p.Complete(b)
		return nil
	}
	d.mu.Lock()
	d.held[p] = append(d.held[p], b)
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Flush(p *Port) {
	if d.stuck {
		return
	}
	d.mu.Lock()
	bufs := d.held[p]
	delete(d.held, p)
	d.mu.Unlock()
	for _, b := range bufs {
		b.Length = 0
		p.Complete(b)
	}
}

func (d *fakeDriver) Disable(p *Port) {}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Capture(p *Port) error {
	d.mu.Lock()
	d.captures++
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) heldCount(p *Port) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.held[p])
}

// complete returns the n oldest buffers held for p, filling each with fill.
func (d *fakeDriver) complete(p *Port, n int, fill func(i int, b *Buffer)) {
	d.mu.Lock()
	bufs := d.held[p]
	if n > len(bufs) {
		n = len(bufs)
	}
	done := bufs[:n]
	d.held[p] = bufs[n:]
	d.mu.Unlock()
	for i, b := range done {
		if fill != nil {
			fill(i, b)
		}
		p.Complete(b)
	}
}

var testFormat = Format{Encoding: EncodingRGB24, Width: 4, Height: 4}

// newReady creates a configured component with one output and one input.
func newReady(t *testing.T, name string, d *fakeDriver) *Component {
	t.Helper()
	if len(d.specs) == 0 {
		d.specs = []PortSpec{{Direction: Output}, {Direction: Input}}
	}
	c, err := NewComponent(name, d)
	require.NoError(t, err)
	var formats []PortFormat
	if out := c.Output(0); out != nil {
		formats = append(formats, PortFormat{Port: out, Format: testFormat})
	}
	require.NoError(t, c.Configure(formats, nil))
	c.DrainTimeout = time.Second
	return c
}

func requireConsistent(t *testing.T, p *Pool) PoolStats {
	t.Helper()
	s := p.Stats()
	require.Equal(t, s.Total, s.Free+s.InPort+s.Held, "pool accounting %+v", s)
	return s
}
