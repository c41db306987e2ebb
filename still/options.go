package still

import (
	"time"

	"github.com/pkg/errors"

	"stillcam/camera"
	"stillcam/camera/params"
	"stillcam/mmal"
)

// Options configure a capture run.
type Options struct {
	Width    int
	Height   int
	Encoding mmal.Encoding

	Parameters params.Parameters

	// Timeout is the delay before a single still, or the total run time of
	// timelapse and triggered runs. Zero lets a triggered run go on until
	// cancelled.
	Timeout   time.Duration
	Timelapse time.Duration
	Triggered bool

	// CaptureTimeout bounds the wait for a complete frame after a trigger.
	CaptureTimeout time.Duration
	// DrainTimeout bounds disabling each port.
	DrainTimeout time.Duration

	// BufferCount and BufferSize override the still port's negotiated
	// buffers. Zero keeps the port's recommendation.
	BufferCount int
	BufferSize  int
}

func DefaultOptions() Options {
	return Options{
		Width:          camera.MaxWidth,
		Height:         camera.MaxHeight,
		Encoding:       mmal.EncodingRGB24,
		Parameters:     params.Defaults(),
		Timeout:        5 * time.Second,
		CaptureTimeout: 5 * time.Second,
		DrainTimeout:   mmal.DefaultDrainTimeout,
	}
}

func (o *Options) Mode() Mode {
	switch {
	case o.Triggered:
		return ModeTriggered
	case o.Timelapse > 0:
		return ModeTimelapse
	}
	return ModeSingle
}

// StillFormat is the format requested on the capture port.
func (o *Options) StillFormat() mmal.Format {
	return mmal.Format{
		Encoding:  o.Encoding,
		Width:     o.Width,
		Height:    o.Height,
		FrameRate: mmal.Rational{Num: 3, Den: 1},
	}
}

// Validate checks the options that are not left to the camera to reject.
func (o *Options) Validate() error {
	switch {
	case o.Timeout < 0, o.Timelapse < 0, o.CaptureTimeout < 0, o.DrainTimeout < 0:
		return errors.Wrap(mmal.ErrInvalidParameter, "durations must not be negative")
	case o.BufferCount < 0, o.BufferSize < 0:
		return errors.Wrap(mmal.ErrInvalidParameter, "buffer count and size must not be negative")
	case o.Triggered && o.Timelapse > 0:
		return errors.Wrap(mmal.ErrInvalidParameter, "timelapse and triggered modes are exclusive")
	}
	return nil
}
