package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stillcam/camera/params"
	"stillcam/mmal"
	"stillcam/still"
)

const sample = `
output: /tmp/stills/still%03d.ppm
width: 640
height: 480
encoding: i420
timeout: 2s
timelapse: 500ms
capture_timeout: 3s
buffers: 4
listen: ":8080"
camera:
  brightness: 70
  exposure: night
  awb: cloud
  hflip: true
  roi: {x: 0.8, y: 0.8, w: 0.5, h: 0.5}
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/stills/still%03d.ppm", c.Output)
	assert.Equal(t, 640, c.Width)
	assert.Equal(t, 2*time.Second, c.Timeout)
	assert.Equal(t, 500*time.Millisecond, c.Timelapse)
	assert.Equal(t, 70, c.Camera.Brightness)
	assert.Equal(t, params.ExposureNight, c.Camera.ExposureMode)
	assert.Equal(t, params.AWBCloud, c.Camera.AWBMode)
	// Defaults survive for fields the file leaves out.
	assert.Equal(t, params.MeteringAverage, c.Camera.MeteringMode)
	assert.Equal(t, still.DefaultOptions().DrainTimeout, c.DrainTimeout)
	// The region of interest is clamped.
	assert.InDelta(t, 0.2, c.Camera.ROI.W, 1e-9)
	assert.InDelta(t, 0.2, c.Camera.ROI.H, 1e-9)

	o, err := c.Options()
	require.NoError(t, err)
	assert.Equal(t, mmal.EncodingI420, o.Encoding)
	assert.Equal(t, still.ModeTimelapse, o.Mode())
	assert.Equal(t, 4, o.BufferCount)
	assert.Equal(t, 3*time.Second, o.CaptureTimeout)
}

func TestParseRejects(t *testing.T) {
	for name, in := range map[string]string{
		"yaml":       "width: [1",
		"encoding":   "encoding: jpeg",
		"size":       "width: 5000",
		"roi":        "camera: {roi: {x: 1.5, y: 0, w: 1, h: 1}}",
		"brightness": "camera: {brightness: 101}",
		"awb":        "camera: {awb: disco}",
	} {
		_, err := Parse([]byte(in))
		assert.Error(t, err, name)
		assert.Equal(t, mmal.ClassConfiguration, mmal.Class(err), "%s: %v", name, err)
	}
}

func TestParseEncoding(t *testing.T) {
	for in, want := range map[string]mmal.Encoding{
		"rgb":  mmal.EncodingRGB24,
		"RGB3": mmal.EncodingRGB24,
		"yuv":  mmal.EncodingI420,
		"I420": mmal.EncodingI420,
	} {
		got, err := ParseEncoding(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseEncoding("OPQV")
	assert.True(t, errors.Is(err, mmal.ErrUnsupportedFormat))
}

func TestLoadReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stillcam.yaml")
	require.NoError(t, os.WriteFile(path, []byte("camera: {brightness: 40}\n"), 0644))

	var mu sync.Mutex
	var changes []*Config
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, Load(ctx, path, func(c *Config) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c)
	}))
	assert.Equal(t, 40, Get().Camera.Brightness)

	// A broken file is ignored.
	require.NoError(t, os.WriteFile(path, []byte("camera: {brightness: 400}\n"), 0644))
	time.Sleep(3 * settle)
	assert.Equal(t, 40, Get().Camera.Brightness)

	require.NoError(t, os.WriteFile(path, []byte("camera: {brightness: 60}\n"), 0644))
	require.Eventually(t, func() bool { return Get().Camera.Brightness == 60 }, 5*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, changes)
	assert.Equal(t, 60, changes[len(changes)-1].Camera.Brightness)
}

func TestLoadMissingFile(t *testing.T) {
	err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}
