package config

import (
	"os"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"stillcam/camera"
	"stillcam/camera/params"
	"stillcam/mmal"
	"stillcam/still"
)

type Config struct {
	// Output is the file template stills are written to, "-" for stdout.
	Output   string `yaml:"output"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	Encoding string `yaml:"encoding"`

	Timeout        time.Duration `yaml:"timeout"`
	Timelapse      time.Duration `yaml:"timelapse"`
	Triggered      bool          `yaml:"triggered"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`

	// Buffers and BufferSize override the still port buffers when non-zero.
	Buffers    int `yaml:"buffers"`
	BufferSize int `yaml:"buffer_size"`

	// Listen is the address of the HTTP server, empty to disable it.
	Listen string `yaml:"listen"`
	// Database is a MySQL DSN for the capture log, empty to disable it.
	Database string `yaml:"database"`
	Verbose  bool   `yaml:"verbose"`

	Camera params.Parameters `yaml:"camera"`
}

func Default() *Config {
	o := still.DefaultOptions()
	return &Config{
		Output:         "image%04d.ppm",
		Width:          o.Width,
		Height:         o.Height,
		Encoding:       "rgb",
		Timeout:        o.Timeout,
		CaptureTimeout: o.CaptureTimeout,
		DrainTimeout:   o.DrainTimeout,
		Camera:         o.Parameters,
	}
}

// ParseEncoding accepts rgb, i420 or a four character code.
func ParseEncoding(s string) (mmal.Encoding, error) {
	switch strings.ToLower(s) {
	case "rgb", "rgb24", strings.ToLower(string(mmal.EncodingRGB24)):
		return mmal.EncodingRGB24, nil
	case "i420", "yuv":
		return mmal.EncodingI420, nil
	}
	return "", errors.Wrapf(mmal.ErrUnsupportedFormat, "encoding %q", s)
}

// Parse reads YAML on top of the defaults. The region of interest is
// clamped to the sensor.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, errors.Wrapf(mmal.ErrInvalidParameter, "parse config: %v", err)
	}
	r := c.Camera.ROI
	roi, err := params.NewROI(r.X, r.Y, r.W, r.H)
	if err != nil {
		return nil, err
	}
	c.Camera.ROI = roi
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if _, err := ParseEncoding(c.Encoding); err != nil {
		return err
	}
	if c.Width <= 0 || c.Height <= 0 || c.Width > camera.MaxWidth || c.Height > camera.MaxHeight {
		return errors.Wrapf(mmal.ErrUnsupportedFormat, "size %dx%d outside %dx%d", c.Width, c.Height, camera.MaxWidth, camera.MaxHeight)
	}
	if c.Output == "" {
		return errors.Wrap(mmal.ErrInvalidParameter, "no output")
	}
	return c.Camera.Validate()
}

func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	log.Debugf("Loaded configuration: %v", spew.Sdump(c))
	return c, nil
}

// Options converts the configuration into controller options.
func (c *Config) Options() (still.Options, error) {
	enc, err := ParseEncoding(c.Encoding)
	if err != nil {
		return still.Options{}, err
	}
	return still.Options{
		Width:          c.Width,
		Height:         c.Height,
		Encoding:       enc,
		Parameters:     c.Camera,
		Timeout:        c.Timeout,
		Timelapse:      c.Timelapse,
		Triggered:      c.Triggered,
		CaptureTimeout: c.CaptureTimeout,
		DrainTimeout:   c.DrainTimeout,
		BufferCount:    c.Buffers,
		BufferSize:     c.BufferSize,
	}, nil
}
