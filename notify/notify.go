package notify

import (
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"stillcam/camera"
	"stillcam/mmal"
)

// Capture is sent to all Listeners registered with Notifier.
type Capture struct {
	Identifier string      `json:"id"`
	Sequence   int         `json:"sequence"`
	Format     mmal.Format `json:"format"`
	Size       int         `json:"size"`
	Segments   int         `json:"segments"`
	Location   string      `json:"location,omitempty"`
	CapturedAt time.Time   `json:"captured_at"`
	TimeString string      `json:"time"`
}

// NewCapture describes a frame that was written to location.
func NewCapture(f *camera.Frame, location string) *Capture {
	return &Capture{
		Identifier: uuid.New().String(),
		Sequence:   f.Sequence,
		Format:     f.Format,
		Size:       len(f.Data),
		Segments:   f.Segments,
		Location:   location,
		CapturedAt: f.CapturedAt,
		TimeString: f.CapturedAt.Format("3:04:05 PM"),
	}
}

type Listener interface {
	Captured(c *Capture) error
}

type Notifier struct {
	listeners []Listener
	last      *Capture
	count     int

	l  sync.Mutex
	wg sync.WaitGroup
}

// Add registers a listener for every following capture.
func (n *Notifier) Add(l Listener) {
	n.l.Lock()
	defer n.l.Unlock()
	n.listeners = append(n.listeners, l)
}

// Captured fans c out to every listener. Listeners run concurrently and a
// failing listener does not affect the others.
func (n *Notifier) Captured(c *Capture) {
	n.l.Lock()
	defer n.l.Unlock()
	n.last = c
	n.count++

	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("Sending capture notification: %v", spew.Sdump(c))
	}
	for _, l := range n.listeners {
		n.wg.Add(1)
		go func(l Listener) {
			defer n.wg.Done()
			if err := l.Captured(c); err != nil {
				log.Errorf("Failed to send capture notification: %v", err)
			}
		}(l)
	}
}

// Wait blocks until every listener call has returned.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Last returns the most recent capture, or nil.
func (n *Notifier) Last() *Capture {
	n.l.Lock()
	defer n.l.Unlock()
	return n.last
}

func (n *Notifier) Count() int {
	n.l.Lock()
	defer n.l.Unlock()
	return n.count
}
