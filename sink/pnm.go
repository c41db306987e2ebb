package sink

import (
	"bufio"
	"fmt"
	"io"

	"github.com/pkg/errors"

	"stillcam/camera"
	"stillcam/mmal"
)

// DefaultWriteBuffer is the buffering used in front of output files.
const DefaultWriteBuffer = 10 << 10

// PNMWriter encodes frames as binary portable anymaps: RGB24 frames become
// P6 pixmaps and I420 frames P5 greymaps of their luma plane.
type PNMWriter struct {
	w *bufio.Writer
}

func NewPNMWriter(w io.Writer) *PNMWriter {
	return &PNMWriter{w: bufio.NewWriterSize(w, DefaultWriteBuffer)}
}

func (p *PNMWriter) WriteFrame(f camera.Frame) error {
	width, height := f.Format.Width, f.Format.Height
	var magic string
	var n int
	switch f.Format.Encoding {
	case mmal.EncodingRGB24:
		magic, n = "P6", width*height*3
	case mmal.EncodingI420:
		magic, n = "P5", width*height
	default:
		return errors.Wrapf(mmal.ErrUnsupportedFormat, "pnm cannot encode %v", f.Format.Encoding)
	}
	if len(f.Data) < n {
		return errors.Errorf("pnm: frame has %d bytes, %v needs %d", len(f.Data), f.Format, n)
	}
	if _, err := fmt.Fprintf(p.w, "%s\n%d %d\n255\n", magic, width, height); err != nil {
		return err
	}
	if _, err := p.w.Write(f.Data[:n]); err != nil {
		return err
	}
	return p.w.Flush()
}

// WritePattern writes the sensor test pattern as a width x height pixmap
// without going through the camera.
func WritePattern(w io.Writer, width, height int) error {
	bw := bufio.NewWriterSize(w, DefaultWriteBuffer)
	if _, err := fmt.Fprintf(bw, "P6\n%d %d\n255\n", width, height); err != nil {
		return err
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b := camera.PatternPixel(x, y)
			bw.WriteByte(r)
			bw.WriteByte(g)
			bw.WriteByte(b)
		}
	}
	return bw.Flush()
}
