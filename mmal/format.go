package mmal

import "fmt"

// Encoding is a four character code naming the pixel layout on a port.
type Encoding string

const (
	EncodingRGB24  Encoding = "RGB3"
	EncodingI420   Encoding = "I420"
	EncodingOpaque Encoding = "OPQV"
)

// opaqueSize is the size of the handle passed for opaque buffers.
const opaqueSize = 128

type Rational struct {
	Num int `json:"num"`
	Den int `json:"den"`
}

type Format struct {
	Encoding  Encoding `json:"encoding"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	FrameRate Rational `json:"frame_rate"`
}

func (f Format) IsZero() bool {
	return f == Format{}
}

// FrameSize returns the number of bytes one complete frame occupies.
func (f Format) FrameSize() int {
	switch f.Encoding {
	case EncodingRGB24:
		return f.Width * f.Height * 3
	case EncodingI420:
		cw, ch := (f.Width+1)/2, (f.Height+1)/2
		return f.Width*f.Height + 2*cw*ch
	case EncodingOpaque:
		return opaqueSize
	}
	return 0
}

// Compatible reports whether buffers produced in f can be consumed as g.
func (f Format) Compatible(g Format) bool {
	return f.Encoding == g.Encoding && f.Width == g.Width && f.Height == g.Height
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dx%d@%d/%d", f.Encoding, f.Width, f.Height, f.FrameRate.Num, f.FrameRate.Den)
}

// Requirements are the buffer needs a driver declares for a port format.
type Requirements struct {
	NumMin          int `json:"num_min"`
	SizeMin         int `json:"size_min"`
	NumRecommended  int `json:"num_recommended"`
	SizeRecommended int `json:"size_recommended"`
}
