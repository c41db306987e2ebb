package camera

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"stillcam/camera/params"
	"stillcam/mmal"
)

// Output port indices of the sensor component.
const (
	PreviewPort = 0
	VideoPort   = 1
	CapturePort = 2
)

// Largest frame the sensor produces.
const (
	MaxWidth  = 2592
	MaxHeight = 1944
)

// SensorOptions tune the simulated hardware.
type SensorOptions struct {
	// Viewfinder is the interval between preview and video frames. Zero
	// stops the viewfinder.
	Viewfinder time.Duration
	// Exposure is the delay between a capture trigger and the first segment.
	Exposure time.Duration
	// Fail, when set, is returned by every capture trigger.
	Fail error
}

var DefaultSensorOptions = SensorOptions{
	Viewfinder: 33 * time.Millisecond,
	Exposure:   10 * time.Millisecond,
}

type portBuffer struct {
	p *mmal.Port
	b *mmal.Buffer
}

type flushRequest struct {
	p    *mmal.Port
	done chan bool
}

type captureRequest struct {
	p     *mmal.Port
	reply chan error
}

// still is a frame being delivered in segments.
type still struct {
	p    *mmal.Port
	data []byte
	off  int
	// ready fires when the exposure completes and is nil afterwards.
	ready <-chan time.Time
}

// Sensor is a simulated camera driver with preview, video and still outputs.
// All buffer traffic goes through a single goroutine, which returns buffers
// to their ports the way hardware callbacks would.
type Sensor struct {
	opts SensorOptions

	submit  chan portBuffer
	flush   chan flushRequest
	capture chan captureRequest
	params  chan params.Parameters
	close   chan chan bool
	done    chan struct{}
}

func NewSensor(opts SensorOptions) *Sensor {
	s := &Sensor{
		opts:    opts,
		submit:  make(chan portBuffer),
		flush:   make(chan flushRequest),
		capture: make(chan captureRequest),
		params:  make(chan params.Parameters),
		close:   make(chan chan bool),
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Sensor) loop() {
	defer close(s.done)

	queued := make(map[*mmal.Port][]*mmal.Buffer)
	current := params.Defaults()
	var job *still
	start := time.Now()

	var tick <-chan time.Time
	if s.opts.Viewfinder > 0 {
		t := time.NewTicker(s.opts.Viewfinder)
		defer t.Stop()
		tick = t.C
	}

	pop := func(p *mmal.Port) *mmal.Buffer {
		q := queued[p]
		if len(q) == 0 {
			return nil
		}
		b := q[0]
		queued[p] = q[1:]
		return b
	}

	// deliver hands out as much of the still as there are buffers for.
	deliver := func() {
		if job == nil || job.ready != nil {
			return
		}
		for job.off < len(job.data) {
			b := pop(job.p)
			if b == nil {
				return
			}
			n := copy(b.Data, job.data[job.off:])
			job.off += n
			b.Length = n
			b.Timestamp = time.Since(start)
			b.Flags = 0
			if job.off == len(job.data) {
				b.Flags |= mmal.FlagFrameEnd
			}
			job.p.Complete(b)
		}
		log.WithField("port", job.p.Name()).Debugf("Still delivered, %d bytes", len(job.data))
		job = nil
	}

	var exposed <-chan time.Time
	for {
		if job != nil {
			exposed = job.ready
		} else {
			exposed = nil
		}
		select {
		case r := <-s.close:
			r <- true
			return
		case pb := <-s.submit:
			queued[pb.p] = append(queued[pb.p], pb.b)
			deliver()
		case r := <-s.flush:
			if job != nil && job.p == r.p {
				log.WithField("port", r.p.Name()).Warnf("Still aborted after %d of %d bytes", job.off, len(job.data))
				job = nil
			}
			for _, b := range queued[r.p] {
				b.Length = 0
				r.p.Complete(b)
			}
			delete(queued, r.p)
			r.done <- true
		case r := <-s.capture:
			switch {
			case s.opts.Fail != nil:
				r.reply <- s.opts.Fail
				continue
			case job != nil:
				r.reply <- errors.Wrap(mmal.ErrPortState, "capture already in progress")
				continue
			}
			job = &still{
				p:     r.p,
				data:  RenderPattern(r.p.Format(), current),
				ready: time.After(s.opts.Exposure),
			}
			r.reply <- nil
		case <-exposed:
			job.ready = nil
			deliver()
		case p := <-s.params:
			current = p
		case <-tick:
			for p, q := range queued {
				if p.Index() == CapturePort || len(q) == 0 {
					continue
				}
				b := pop(p)
				n := p.Format().FrameSize()
				if n > len(b.Data) {
					n = len(b.Data)
				}
				for i := 0; i < n; i++ {
					b.Data[i] = byte(i)
				}
				b.Length = n
				b.Timestamp = time.Since(start)
				b.Flags = mmal.FlagFrameEnd | mmal.FlagKeyFrame
				p.Complete(b)
			}
		}
	}
}

func (s *Sensor) Ports() []mmal.PortSpec {
	return []mmal.PortSpec{
		{Direction: mmal.Output},
		{Direction: mmal.Output},
		{Direction: mmal.Output},
	}
}

func (s *Sensor) CheckFormat(p *mmal.Port, f mmal.Format) (mmal.Requirements, error) {
	switch f.Encoding {
	case mmal.EncodingRGB24, mmal.EncodingI420:
	case mmal.EncodingOpaque:
		if p.Index() == CapturePort {
			return mmal.Requirements{}, errors.Wrapf(mmal.ErrUnsupportedFormat, "%v: stills need a pixel format, not %v", p, f.Encoding)
		}
	default:
		return mmal.Requirements{}, errors.Wrapf(mmal.ErrUnsupportedFormat, "%v: encoding %q", p, f.Encoding)
	}
	if f.Width <= 0 || f.Height <= 0 || f.Width > MaxWidth || f.Height > MaxHeight {
		return mmal.Requirements{}, errors.Wrapf(mmal.ErrUnsupportedFormat, "%v: %dx%d outside %dx%d", p, f.Width, f.Height, MaxWidth, MaxHeight)
	}
	if p.Index() == CapturePort {
		return mmal.Requirements{
			NumMin:          1,
			SizeMin:         1024,
			NumRecommended:  1,
			SizeRecommended: f.FrameSize(),
		}, nil
	}
	return mmal.Requirements{
		NumMin:          1,
		SizeMin:         f.FrameSize(),
		NumRecommended:  3,
		SizeRecommended: f.FrameSize(),
	}, nil
}

// Configure applies params.Parameters to the sensor.
func (s *Sensor) Configure(v interface{}) error {
	var p params.Parameters
	switch t := v.(type) {
	case params.Parameters:
		p = t
	case *params.Parameters:
		p = *t
	default:
		return errors.Wrapf(mmal.ErrInvalidParameter, "sensor parameters of type %T", v)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	// Rotation is applied in quarter turns.
	p.Rotation = (p.Rotation + 45) / 90 % 4 * 90
	select {
	case s.params <- p:
		return nil
	case <-s.done:
		return errors.New("sensor closed")
	}
}

func (s *Sensor) Enable(p *mmal.Port) error {
	return nil
}

func (s *Sensor) Submit(p *mmal.Port, b *mmal.Buffer) error {
	select {
	case s.submit <- portBuffer{p, b}:
		return nil
	case <-s.done:
		return errors.New("sensor closed")
	}
}

func (s *Sensor) Flush(p *mmal.Port) {
	r := flushRequest{p: p, done: make(chan bool)}
	select {
	case s.flush <- r:
		<-r.done
	case <-s.done:
	}
}

func (s *Sensor) Disable(p *mmal.Port) {}

// Capture starts a still on the capture port.
func (s *Sensor) Capture(p *mmal.Port) error {
	if p.Index() != CapturePort {
		return errors.Wrapf(mmal.ErrPortState, "%v is not the capture port", p)
	}
	r := captureRequest{p: p, reply: make(chan error, 1)}
	select {
	case s.capture <- r:
		return <-r.reply
	case <-s.done:
		return errors.New("sensor closed")
	}
}

func (s *Sensor) Close() error {
	r := make(chan bool)
	select {
	case s.close <- r:
		<-r
	case <-s.done:
	}
	return nil
}
