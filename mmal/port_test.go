package mmal

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortEnableRequiresReady(t *testing.T) {
	d := newFakeDriver(PortSpec{Direction: Output})
	c, err := NewComponent("unconfigured", d)
	require.NoError(t, err)

	err = c.Output(0).Enable(nil)
	assert.True(t, errors.Is(err, ErrPortState))
	assert.False(t, c.Output(0).Enabled())
}

func TestPortEnableTwiceRejected(t *testing.T) {
	c := newReady(t, "twice", newFakeDriver())
	p := c.Output(0)
	require.NoError(t, p.Enable(nil))
	defer p.Disable()

	err := p.Enable(nil)
	assert.True(t, errors.Is(err, ErrPortState))
	assert.True(t, p.Enabled())
}

func TestPortNames(t *testing.T) {
	c := newReady(t, "cam", newFakeDriver())
	assert.Equal(t, "cam:out0", c.Output(0).Name())
	assert.Equal(t, "cam:in0", c.Input(0).Name())
	assert.Nil(t, c.Output(1))
	assert.Len(t, c.Ports(), 2)
}

func TestPortBufferRequirementsNeverLowered(t *testing.T) {
	d := newFakeDriver()
	d.req = Requirements{NumMin: 2, SizeMin: 32, NumRecommended: 3, SizeRecommended: 64}
	c := newReady(t, "req", d)
	p := c.Output(0)
	assert.Equal(t, 3, p.BufferNum())
	assert.Equal(t, 64, p.BufferSize())

	require.NoError(t, p.SetBufferRequirements(1, 8))
	assert.Equal(t, 2, p.BufferNum())
	assert.Equal(t, 32, p.BufferSize())

	pool, err := p.CreatePool(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, pool.Count())
	assert.Equal(t, 32, pool.BufferSize())
	assert.Equal(t, pool, p.Pool())

	_, err = p.CreatePool(2, 32)
	assert.True(t, errors.Is(err, ErrPortState))
	assert.True(t, errors.Is(p.SetBufferRequirements(4, 64), ErrPortState))

	require.NoError(t, pool.Destroy())
	assert.Nil(t, p.Pool())
}

func TestPortSubmitAndComplete(t *testing.T) {
	d := newFakeDriver()
	c := newReady(t, "flow", d)
	p := c.Output(0)
	pool, err := p.CreatePool(3, 16)
	require.NoError(t, err)

	var mu sync.Mutex
	var got []int
	require.NoError(t, p.Enable(func(p *Port, b *Buffer) {
		mu.Lock()
		got = append(got, int(b.Data[0]))
		mu.Unlock()
		b.Pool().Release(b)
	}))

	err = p.Submit(nil)
	assert.True(t, errors.Is(err, ErrForeignBuffer))

	for i := 0; i < 3; i++ {
		b, ok := pool.Acquire()
		require.True(t, ok)
		require.NoError(t, p.Submit(b))
		assert.Equal(t, BufferInPort, b.State())
	}
	assert.Equal(t, 3, p.InFlight())
	assert.Equal(t, PoolStats{Total: 3, InPort: 3}, requireConsistent(t, pool))

	d.complete(p, 3, func(i int, b *Buffer) {
		b.Data[0] = byte(i + 1)
		b.Length = 1
	})
	assert.Eventually(t, func() bool {
		return pool.Stats().Free == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, got)
	mu.Unlock()
	requireConsistent(t, pool)

	require.NoError(t, p.Disable())
	require.NoError(t, pool.Destroy())
}

func TestPortSubmitFull(t *testing.T) {
	d := newFakeDriver()
	c := newReady(t, "full", d)
	p := c.Output(0)
	require.NoError(t, p.SetBufferRequirements(1, 0))
	pool, err := NewPool("extra", 2, 16)
	require.NoError(t, err)
	require.NoError(t, p.Enable(nil))

	a, _ := pool.Acquire()
	b, _ := pool.Acquire()
	require.NoError(t, p.Submit(a))
	err = p.Submit(b)
	assert.True(t, errors.Is(err, ErrPortFull))
	assert.Equal(t, BufferHeld, b.State())
	require.NoError(t, pool.Release(b))

	require.NoError(t, p.Disable())
	require.NoError(t, pool.Destroy())
}

func TestPortSubmitDisabled(t *testing.T) {
	c := newReady(t, "disabled", newFakeDriver())
	pool, err := NewPool("disabled", 1, 16)
	require.NoError(t, err)
	b, _ := pool.Acquire()

	err = c.Output(0).Submit(b)
	assert.True(t, errors.Is(err, ErrPortState))
	assert.Equal(t, BufferHeld, b.State())
}

func TestPortDisableDrainsInFlight(t *testing.T) {
	d := newFakeDriver()
	c := newReady(t, "drain", d)
	p := c.Output(0)
	pool, err := p.CreatePool(2, 16)
	require.NoError(t, err)
	require.NoError(t, p.Enable(nil))

	for {
		b, ok := pool.Acquire()
		if !ok {
			break
		}
		require.NoError(t, p.Submit(b))
	}
	require.Equal(t, 2, p.InFlight())

	require.NoError(t, p.Disable())
	assert.False(t, p.Enabled())
	assert.Equal(t, 0, p.InFlight())
	assert.Equal(t, 2, requireConsistent(t, pool).Free)

	// Idempotent.
	require.NoError(t, p.Disable())
	require.NoError(t, pool.Destroy())
	require.NoError(t, c.Destroy())
}

func TestPortDrainTimeout(t *testing.T) {
	d := newFakeDriver()
	d.stuck = true
	c := newReady(t, "stuck", d)
	c.DrainTimeout = 50 * time.Millisecond
	p := c.Output(0)
	pool, err := p.CreatePool(1, 16)
	require.NoError(t, err)
	require.NoError(t, p.Enable(nil))
	b, _ := pool.Acquire()
	require.NoError(t, p.Submit(b))

	start := time.Now()
	err = p.Disable()
	assert.True(t, errors.Is(err, ErrDrainTimeout))
	assert.Equal(t, ClassHardware, Class(err))
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, p.Enabled())

	assert.True(t, errors.Is(pool.Destroy(), ErrPoolInUse))

	// A buffer that turns up late is reclaimed into its pool.
	d.complete(p, 1, nil)
	assert.Equal(t, 1, requireConsistent(t, pool).Free)
	require.NoError(t, pool.Destroy())
}

func TestPortHandlerMayResubmit(t *testing.T) {
	d := newFakeDriver()
	c := newReady(t, "resubmit", d)
	p := c.Output(0)
	pool, err := p.CreatePool(1, 16)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := 0
	require.NoError(t, p.Enable(func(p *Port, b *Buffer) {
		mu.Lock()
		seen++
		mu.Unlock()
		if err := p.Submit(b); err != nil {
			b.Pool().Release(b)
		}
	}))
	b, _ := pool.Acquire()
	require.NoError(t, p.Submit(b))

	for i := 0; i < 3; i++ {
		require.Eventually(t, func() bool { return d.heldCount(p) == 1 }, time.Second, time.Millisecond)
		d.complete(p, 1, func(_ int, b *Buffer) { b.Length = 1 })
	}
	require.Eventually(t, func() bool { return d.heldCount(p) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, p.Disable())
	mu.Lock()
	assert.Equal(t, 4, seen)
	mu.Unlock()
	assert.Equal(t, 1, requireConsistent(t, pool).Free)
}

func TestTriggerCaptureRequiresPrimedPort(t *testing.T) {
	d := newFakeDriver()
	c := newReady(t, "trigger", d)
	p := c.Output(0)

	assert.True(t, errors.Is(p.TriggerCapture(), ErrPortState))

	pool, err := p.CreatePool(1, 16)
	require.NoError(t, err)
	require.NoError(t, p.Enable(nil))
	assert.True(t, errors.Is(p.TriggerCapture(), ErrPortState))

	b, _ := pool.Acquire()
	require.NoError(t, p.Submit(b))
	require.NoError(t, p.TriggerCapture())
	assert.Equal(t, 1, d.captures)

	require.NoError(t, p.Disable())
}

func TestComponentConfigureValidatesFirst(t *testing.T) {
	d := newFakeDriver(PortSpec{Direction: Output})
	c, err := NewComponent("configure", d)
	require.NoError(t, err)
	p := c.Output(0)

	err = c.Configure([]PortFormat{{Port: p, Format: Format{Encoding: "XXXX", Width: 4, Height: 4}}}, nil)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	assert.Equal(t, ClassConfiguration, Class(err))
	assert.Equal(t, ComponentCreated, c.State())

	err = c.Configure([]PortFormat{{Port: p, Format: testFormat}}, 101)
	assert.True(t, errors.Is(err, ErrInvalidParameter))
	assert.True(t, p.Format().IsZero(), "format applied despite rejected parameters")
	assert.Equal(t, ComponentCreated, c.State())

	require.NoError(t, c.Configure([]PortFormat{{Port: p, Format: testFormat}}, 50))
	assert.Equal(t, ComponentReady, c.State())
	assert.Equal(t, testFormat, p.Format())
	assert.Equal(t, 50, c.Parameters())

	// Parameters alone can change while running, formats cannot.
	pool, err := p.CreatePool(1, 16)
	require.NoError(t, err)
	require.NoError(t, p.Enable(nil))
	require.NoError(t, c.Configure(nil, 10))
	err = c.Configure([]PortFormat{{Port: p, Format: testFormat}}, nil)
	assert.True(t, errors.Is(err, ErrPortState))
	require.NoError(t, p.Disable())
	require.NoError(t, pool.Destroy())
}

func TestComponentDestroyRequiresDisabledPorts(t *testing.T) {
	d := newFakeDriver()
	c := newReady(t, "destroy", d)
	p := c.Output(0)
	pool, err := p.CreatePool(1, 16)
	require.NoError(t, err)
	require.NoError(t, p.Enable(nil))

	assert.True(t, errors.Is(c.Destroy(), ErrPortState))
	require.NoError(t, p.Disable())
	assert.True(t, errors.Is(c.Destroy(), ErrPoolInUse))
	require.NoError(t, pool.Destroy())

	require.NoError(t, c.Destroy())
	assert.Equal(t, ComponentDestroyed, c.State())
	assert.True(t, d.closed)
	require.NoError(t, c.Destroy())

	assert.True(t, errors.Is(p.Enable(nil), ErrPortState))
}

func TestComponentAbandonClosesDriver(t *testing.T) {
	d := newFakeDriver()
	c := newReady(t, "abandon", d)
	_, err := c.Output(0).CreatePool(1, 16)
	require.NoError(t, err)

	assert.True(t, errors.Is(c.Destroy(), ErrPoolInUse))
	assert.False(t, d.closed)
	require.NoError(t, c.Abandon())
	assert.Equal(t, ComponentDestroyed, c.State())
	assert.True(t, d.closed)
	require.NoError(t, c.Abandon())
	require.NoError(t, c.Destroy())
}
