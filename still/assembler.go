package still

import (
	"time"

	"github.com/pkg/errors"

	"stillcam/camera"
	"stillcam/mmal"
)

// ErrFrameCorrupt is returned for a frame with a segment flagged in error or
// with the wrong size.
var ErrFrameCorrupt = errors.New("corrupt frame")

// assembler joins the segments of a still. It is only used from the still
// port's worker.
type assembler struct {
	format   mmal.Format
	data     []byte
	segments int
	ts       time.Duration
	corrupt  bool
}

// add copies b's payload. It returns the frame once b ends it.
func (a *assembler) add(b *mmal.Buffer) (*camera.Frame, error) {
	end := b.Flags.Has(mmal.FlagFrameEnd)
	if b.Length == 0 && !end {
		return nil, nil
	}
	if a.segments == 0 {
		a.ts = b.Timestamp
		if a.data == nil {
			a.data = make([]byte, 0, a.format.FrameSize())
		}
	}
	a.segments++
	a.data = append(a.data, b.Bytes()...)
	if b.Flags.Has(mmal.FlagError) {
		a.corrupt = true
	}
	if !end {
		return nil, nil
	}

	f := &camera.Frame{
		Format:     a.format,
		Data:       a.data,
		Timestamp:  a.ts,
		Segments:   a.segments,
		CapturedAt: time.Now(),
	}
	corrupt := a.corrupt
	a.data, a.segments, a.corrupt = nil, 0, false

	if corrupt {
		return nil, errors.Wrapf(ErrFrameCorrupt, "segment flagged in error, %d segments", f.Segments)
	}
	if want := a.format.FrameSize(); len(f.Data) != want {
		return nil, errors.Wrapf(ErrFrameCorrupt, "got %d bytes in %d segments, want %d", len(f.Data), f.Segments, want)
	}
	return f, nil
}
