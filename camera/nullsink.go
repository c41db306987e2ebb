package camera

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"stillcam/mmal"
)

// NullSink consumes whatever it is given. It keeps the preview running so
// the sensor can settle exposure and white balance before a still.
type NullSink struct {
	submit   chan portBuffer
	close    chan chan bool
	done     chan struct{}
	consumed int64
}

func NewNullSink() *NullSink {
	n := &NullSink{
		submit: make(chan portBuffer, 8),
		close:  make(chan chan bool),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(n.done)
		for {
			select {
			case pb := <-n.submit:
				if pb.b.Length > 0 {
					atomic.AddInt64(&n.consumed, 1)
				}
				pb.p.Complete(pb.b)
			case r := <-n.close:
				r <- true
				return
			}
		}
	}()
	return n
}

// Consumed returns the number of non-empty buffers seen.
func (n *NullSink) Consumed() int {
	return int(atomic.LoadInt64(&n.consumed))
}

func (n *NullSink) Ports() []mmal.PortSpec {
	return []mmal.PortSpec{{Direction: mmal.Input}}
}

// CheckFormat accepts any format, holding one buffer at a time.
func (n *NullSink) CheckFormat(p *mmal.Port, f mmal.Format) (mmal.Requirements, error) {
	return mmal.Requirements{NumMin: 1, NumRecommended: 1, SizeRecommended: f.FrameSize()}, nil
}

func (n *NullSink) Configure(params interface{}) error {
	return nil
}

func (n *NullSink) Enable(p *mmal.Port) error {
	return nil
}

func (n *NullSink) Submit(p *mmal.Port, b *mmal.Buffer) error {
	select {
	case n.submit <- portBuffer{p, b}:
		return nil
	case <-n.done:
		return errors.New("null sink closed")
	}
}

// Flush has nothing to do: every buffer is already on its way back.
func (n *NullSink) Flush(p *mmal.Port) {}

func (n *NullSink) Disable(p *mmal.Port) {}

func (n *NullSink) Close() error {
	r := make(chan bool)
	select {
	case n.close <- r:
		<-r
	case <-n.done:
	}
	return nil
}
