package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stillcam/camera"
	"stillcam/mmal"
)

type recorder struct {
	mu   sync.Mutex
	got  []*Capture
	fail bool
}

func (r *recorder) Captured(c *Capture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, c)
	if r.fail {
		return errors.New("listener down")
	}
	return nil
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func testFrame(seq int) *camera.Frame {
	f := mmal.Format{Encoding: mmal.EncodingRGB24, Width: 2, Height: 2}
	return &camera.Frame{
		Format:     f,
		Data:       make([]byte, f.FrameSize()),
		Segments:   1,
		Sequence:   seq,
		CapturedAt: time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC),
	}
}

func TestNewCapture(t *testing.T) {
	c := NewCapture(testFrame(3), "/tmp/image0003.ppm")
	assert.Len(t, c.Identifier, 36)
	assert.Equal(t, 3, c.Sequence)
	assert.Equal(t, 12, c.Size)
	assert.Equal(t, "2:05:09 PM", c.TimeString)
	assert.NotEqual(t, c.Identifier, NewCapture(testFrame(3), "").Identifier)
}

func TestNotifierFansOut(t *testing.T) {
	var n Notifier
	assert.Nil(t, n.Last())

	ok, broken := &recorder{}, &recorder{fail: true}
	n.Add(ok)
	n.Add(broken)

	first := NewCapture(testFrame(0), "a")
	second := NewCapture(testFrame(1), "b")
	n.Captured(first)
	n.Captured(second)
	n.Wait()

	require.Equal(t, 2, ok.len())
	assert.Equal(t, 2, broken.len())
	assert.ElementsMatch(t, []*Capture{first, second}, ok.got)
	assert.Same(t, second, n.Last())
	assert.Equal(t, 2, n.Count())
}
