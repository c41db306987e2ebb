package params

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"stillcam/mmal"
)

// ROI is a region of interest in normalised sensor coordinates.
type ROI struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	W float64 `yaml:"w" json:"w"`
	H float64 `yaml:"h" json:"h"`
}

// FullFrame covers the whole sensor.
var FullFrame = ROI{W: 1, H: 1}

// NewROI validates a region. Any coordinate outside [0,1], or NaN, rejects the
// region.
// Width and height are clamped so the region stays on the sensor.
func NewROI(x, y, w, h float64) (ROI, error) {
	for _, v := range []float64{x, y, w, h} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return ROI{}, errors.Wrapf(mmal.ErrInvalidParameter, "roi %v,%v,%v,%v: values must be within [0,1]", x, y, w, h)
		}
	}
	if x+w > 1 {
		w = 1 - x
	}
	if y+h > 1 {
		h = 1 - y
	}
	return ROI{X: x, Y: y, W: w, H: h}, nil
}

// ParseROI parses "x,y,w,h".
func ParseROI(s string) (ROI, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return ROI{}, errors.Wrapf(mmal.ErrInvalidParameter, "roi %q: want x,y,w,h", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return ROI{}, errors.Wrapf(mmal.ErrInvalidParameter, "roi %q: %v", s, err)
		}
		v[i] = f
	}
	return NewROI(v[0], v[1], v[2], v[3])
}

func (r ROI) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", r.X, r.Y, r.W, r.H)
}

// IsFull reports whether r covers the whole sensor.
func (r ROI) IsFull() bool {
	return r == FullFrame
}

func (r ROI) validate() error {
	_, err := NewROI(r.X, r.Y, r.W, r.H)
	if err != nil {
		return err
	}
	if r.X+r.W > 1 || r.Y+r.H > 1 {
		return errors.Wrapf(mmal.ErrInvalidParameter, "roi %v extends past the sensor", r)
	}
	if r.W == 0 || r.H == 0 {
		return errors.Wrapf(mmal.ErrInvalidParameter, "roi %v is empty", r)
	}
	return nil
}
