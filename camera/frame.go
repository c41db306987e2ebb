// Package camera provides the simulated sensor and null sink components.
package camera

import (
	"time"

	"stillcam/mmal"
)

// Frame is one complete still, assembled from the buffers that carried it.
type Frame struct {
	Format mmal.Format
	Data   []byte
	// Timestamp is the sensor time of the first segment.
	Timestamp time.Duration
	// Segments is the number of buffers the frame arrived in.
	Segments   int
	Sequence   int
	CapturedAt time.Time
}

// Size returns the number of payload bytes.
func (f *Frame) Size() int {
	return len(f.Data)
}
