// Package sink writes captured stills to their destination.
package sink

import (
	"stillcam/camera"
)

// Sink defines a destination for captured stills, such as an image file.
type Sink interface {
	// Put writes a frame. The sink must not keep a reference to f.Data
	// beyond the call.
	Put(f camera.Frame) error

	// Close should be called to finalize the Sink.
	Close() error
}

// Locator is implemented by sinks that store frames somewhere addressable.
type Locator interface {
	// Location returns where the last frame was written.
	Location() string
}
