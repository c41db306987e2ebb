// Package still drives the camera pipeline through a capture run.
package still

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"stillcam/camera"
	"stillcam/camera/params"
	"stillcam/mmal"
	"stillcam/notify"
	"stillcam/sink"
)

var (
	// ErrAborted is returned by Run when its context is cancelled.
	ErrAborted = errors.New("capture aborted")
	// ErrCaptureTimeout means a trigger did not produce a frame in time.
	ErrCaptureTimeout = errors.New("capture timed out")
)

// Preview and video run opaque at this size to feed the null sink.
var viewfinderFormat = mmal.Format{
	Encoding:  mmal.EncodingOpaque,
	Width:     1024,
	Height:    768,
	FrameRate: mmal.Rational{Num: 30, Den: 1},
}

type frameResult struct {
	frame *camera.Frame
	err   error
}

// Status is a snapshot of a controller.
type Status struct {
	State      State           `json:"state"`
	Mode       Mode            `json:"mode"`
	Captures   int             `json:"captures"`
	Pool       *mmal.PoolStats `json:"pool,omitempty"`
	Viewfinder *mmal.PoolStats `json:"viewfinder,omitempty"`
	Steps      []string        `json:"steps"`
	LastError  string          `json:"last_error,omitempty"`
}

// Controller owns every component, pool and connection of one capture run.
// Run drives it from a single goroutine; the other methods are safe to call
// from any goroutine.
type Controller struct {
	opts Options

	// NewCamera and NewSink build the component drivers.
	NewCamera func() mmal.Driver
	NewSink   func() mmal.Driver
	// Notifier, if set, is told about every still written.
	Notifier *notify.Notifier

	mu       sync.Mutex
	state    State
	steps    []string
	captures int
	lastErr  error
	pool     *mmal.Pool
	conn     *mmal.Connection

	camera *mmal.Component
	null   *mmal.Component
	still  *mmal.Port

	trigger chan struct{}
	params  chan params.Parameters
	frames  chan frameResult
	asm     assembler
}

func NewController(opts Options) *Controller {
	if opts.CaptureTimeout == 0 {
		opts.CaptureTimeout = DefaultOptions().CaptureTimeout
	}
	if opts.Encoding == "" {
		opts.Encoding = mmal.EncodingRGB24
	}
	return &Controller{
		opts: opts,
		NewCamera: func() mmal.Driver {
			return camera.NewSensor(camera.DefaultSensorOptions)
		},
		NewSink: func() mmal.Driver {
			return camera.NewNullSink()
		},
		trigger: make(chan struct{}, 1),
		params:  make(chan params.Parameters, 1),
		frames:  make(chan frameResult, 1),
	}
}

func (c *Controller) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	pipelineState.Set(float64(s))
	log.WithField("mode", c.opts.Mode()).Infof("Pipeline %v -> %v", prev, s)
}

// Steps returns every pipeline operation performed so far, in order.
func (c *Controller) Steps() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.steps...)
}

func (c *Controller) journal(step string) {
	c.mu.Lock()
	c.steps = append(c.steps, step)
	c.mu.Unlock()
	log.Debugf("Pipeline step: %s", step)
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		State:    c.state,
		Mode:     c.opts.Mode(),
		Captures: c.captures,
		Steps:    append([]string(nil), c.steps...),
	}
	if c.pool != nil {
		ps := c.pool.Stats()
		s.Pool = &ps
	}
	if c.conn != nil {
		if p := c.conn.Pool(); p != nil {
			ps := p.Stats()
			s.Viewfinder = &ps
		}
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// Trigger requests a still from a triggered run. It reports false if the
// controller is not accepting triggers or one is already pending.
func (c *Controller) Trigger() bool {
	if c.opts.Mode() != ModeTriggered || c.State() != Capturing {
		return false
	}
	select {
	case c.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// UpdateParameters validates p and queues it for the camera. It is applied
// before the next still; a newer update replaces one not yet applied.
func (c *Controller) UpdateParameters(p params.Parameters) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for {
		select {
		case c.params <- p:
			return nil
		default:
		}
		select {
		case <-c.params:
		default:
		}
	}
}

// Run builds the pipeline, captures stills into out according to the
// options and tears everything down again. Cancelling ctx aborts the run;
// teardown still completes before Run returns ErrAborted.
func (c *Controller) Run(ctx context.Context, out sink.Sink) (err error) {
	if c.State() != Uninitialized {
		return errors.Wrapf(mmal.ErrPortState, "controller is %v", c.State())
	}
	defer func() {
		c.setState(Draining)
		if terr := c.teardown(); terr != nil {
			err = stderrors.Join(err, terr)
		}
		c.setState(Destroyed)
		if err != nil {
			c.mu.Lock()
			c.lastErr = err
			c.mu.Unlock()
			log.Errorf("Capture run failed: %v", err)
		}
	}()

	if err := c.opts.Validate(); err != nil {
		return err
	}
	stages := []struct {
		state State
		run   func() error
	}{
		{ComponentsCreated, c.create},
		{Configured, c.configure},
		{Connected, c.connect},
		{Capturing, c.enableStill},
	}
	for _, s := range stages {
		if ctx.Err() != nil {
			return ErrAborted
		}
		if err := s.run(); err != nil {
			return err
		}
		c.setState(s.state)
	}
	return c.captureLoop(ctx, out)
}

func (c *Controller) create() error {
	cam, err := mmal.NewComponent("camera", c.NewCamera())
	if err != nil {
		return err
	}
	cam.DrainTimeout = c.opts.DrainTimeout
	c.camera = cam
	c.journal("create camera")

	null, err := mmal.NewComponent("null_sink", c.NewSink())
	if err != nil {
		return err
	}
	null.DrainTimeout = c.opts.DrainTimeout
	c.null = null
	c.journal("create null sink")
	return nil
}

func (c *Controller) configure() error {
	still := c.camera.Output(camera.CapturePort)
	preview := c.camera.Output(camera.PreviewPort)
	video := c.camera.Output(camera.VideoPort)
	if still == nil || preview == nil || video == nil {
		return errors.Wrap(mmal.ErrPortMismatch, "camera lacks preview, video or still output")
	}
	if c.null.Input(0) == nil {
		return errors.Wrap(mmal.ErrPortMismatch, "sink has no input")
	}

	formats := []mmal.PortFormat{
		{Port: preview, Format: viewfinderFormat},
		{Port: video, Format: viewfinderFormat},
		{Port: still, Format: c.opts.StillFormat()},
	}
	if err := c.camera.Configure(formats, c.opts.Parameters); err != nil {
		return err
	}
	c.journal("configure camera")
	if err := c.null.Configure(nil, nil); err != nil {
		return err
	}
	c.journal("configure null sink")

	if err := still.SetBufferRequirements(c.opts.BufferCount, c.opts.BufferSize); err != nil {
		return err
	}
	c.still = still
	return nil
}

func (c *Controller) connect() error {
	conn, err := mmal.Connect(c.camera.Output(camera.PreviewPort), c.null.Input(0), mmal.PolicyDropNewest)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.journal("connect preview")

	if err := conn.Enable(); err != nil {
		return err
	}
	c.journal("enable connection")
	return nil
}

func (c *Controller) enableStill() error {
	pool, err := c.still.CreatePool(c.still.BufferNum(), c.still.BufferSize())
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.pool = pool
	c.mu.Unlock()
	c.journal("create still pool")

	c.asm = assembler{format: c.still.Format()}
	if err := c.still.Enable(c.handleStill); err != nil {
		return err
	}
	c.journal("enable still port")
	log.WithField("port", c.still.Name()).Infof("Still port ready, %d buffers of %d bytes for %v",
		pool.Count(), pool.BufferSize(), c.still.Format())
	return nil
}

// handleStill runs on the still port worker for every returned buffer.
func (c *Controller) handleStill(p *mmal.Port, b *mmal.Buffer) {
	frame, err := c.asm.add(b)
	pool := b.Pool()
	pool.Release(b)

	// Keep the port primed.
	if p.Enabled() {
		if nb, ok := pool.Acquire(); ok {
			if err := p.Submit(nb); err != nil {
				pool.Release(nb)
			}
		}
	}

	if frame == nil && err == nil {
		return
	}
	select {
	case c.frames <- frameResult{frame, err}:
	default:
		log.WithField("port", p.Name()).Warnf("Dropped a frame nobody was waiting for")
	}
}

// prime submits every free still buffer to the port.
func (c *Controller) prime() int {
	n := 0
	for {
		b, ok := c.pool.Acquire()
		if !ok {
			return n
		}
		if err := c.still.Submit(b); err != nil {
			c.pool.Release(b)
			return n
		}
		n++
	}
}

func (c *Controller) applyParameters() error {
	select {
	case p := <-c.params:
		if err := c.camera.Configure(nil, p); err != nil {
			return err
		}
		c.mu.Lock()
		c.opts.Parameters = p
		c.mu.Unlock()
		c.journal("update parameters")
	default:
	}
	return nil
}

func (c *Controller) captureLoop(ctx context.Context, out sink.Sink) error {
	var deadline <-chan time.Time
	if c.opts.Timeout > 0 {
		t := time.NewTimer(c.opts.Timeout)
		defer t.Stop()
		deadline = t.C
	}

	switch c.opts.Mode() {
	case ModeSingle:
		if deadline != nil {
			select {
			case <-ctx.Done():
				return ErrAborted
			case <-deadline:
			}
		}
		return c.capture(ctx, out)

	case ModeTimelapse:
		tick := time.NewTicker(c.opts.Timelapse)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return ErrAborted
			case <-deadline:
				return nil
			case <-tick.C:
				if err := c.capture(ctx, out); err != nil {
					return err
				}
			}
		}

	default:
		for {
			select {
			case <-ctx.Done():
				return ErrAborted
			case <-deadline:
				return nil
			case <-c.trigger:
				if err := c.capture(ctx, out); err != nil {
					return err
				}
			}
		}
	}
}

// capture takes one still and hands it to out.
func (c *Controller) capture(ctx context.Context, out sink.Sink) error {
	if err := c.applyParameters(); err != nil {
		return err
	}
	// Discard a late frame from a previous trigger.
	select {
	case <-c.frames:
	default:
	}
	primed := c.prime()
	log.WithField("port", c.still.Name()).Debugf("Primed %d buffers, %d in port", primed, c.still.InFlight())

	start := time.Now()
	if err := c.still.TriggerCapture(); err != nil {
		captures.WithLabelValues("error").Inc()
		return err
	}
	t := time.NewTimer(c.opts.CaptureTimeout)
	defer t.Stop()

	var r frameResult
	select {
	case <-ctx.Done():
		return ErrAborted
	case <-t.C:
		captures.WithLabelValues("timeout").Inc()
		return errors.Wrapf(ErrCaptureTimeout, "no frame within %v", c.opts.CaptureTimeout)
	case r = <-c.frames:
	}
	if r.err != nil {
		captures.WithLabelValues("corrupt").Inc()
		return r.err
	}
	captureLatency.Observe(time.Since(start).Seconds())

	c.mu.Lock()
	r.frame.Sequence = c.captures
	c.captures++
	c.mu.Unlock()

	if err := out.Put(*r.frame); err != nil {
		captures.WithLabelValues("error").Inc()
		return errors.Wrap(err, "write still")
	}
	captures.WithLabelValues("ok").Inc()

	location := ""
	if l, ok := out.(sink.Locator); ok {
		location = l.Location()
	}
	log.WithFields(log.Fields{
		"sequence": r.frame.Sequence,
		"segments": r.frame.Segments,
		"location": location,
	}).Infof("Captured %v in %v", r.frame.Format, time.Since(start))
	if c.Notifier != nil {
		c.Notifier.Captured(notify.NewCapture(r.frame, location))
	}
	return nil
}

// teardown undoes whatever was built, in reverse order: connections first,
// then ports, pools and components, sink before camera. It keeps going
// after a failure and returns every error. A component that still holds
// buffers is abandoned so its driver is closed anyway.
func (c *Controller) teardown() error {
	var errs []error
	step := func(name string, fn func() error) {
		c.journal(name)
		if err := fn(); err != nil {
			log.Errorf("Teardown %s: %v", name, err)
			errs = append(errs, err)
		}
	}

	c.mu.Lock()
	conn, pool := c.conn, c.pool
	c.mu.Unlock()

	if conn != nil {
		step("disable connection", conn.Disable)
		step("disconnect preview", conn.Disconnect)
	}
	if c.still != nil {
		step("disable still port", c.still.Disable)
	}
	for _, comp := range []*mmal.Component{c.null, c.camera} {
		if comp == nil {
			continue
		}
		for _, p := range comp.Ports() {
			if p != c.still && p.Enabled() {
				step("disable "+p.Name(), p.Disable)
			}
		}
	}
	if pool != nil {
		step("destroy still pool", pool.Destroy)
	}
	destroy := func(name string, comp *mmal.Component) {
		if comp == nil {
			return
		}
		step("destroy "+name, comp.Destroy)
		if comp.State() != mmal.ComponentDestroyed {
			step("abandon "+name, comp.Abandon)
		}
	}
	destroy("null sink", c.null)
	destroy("camera", c.camera)
	return stderrors.Join(errs...)
}
