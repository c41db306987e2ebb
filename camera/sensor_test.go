package camera

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stillcam/camera/params"
	"stillcam/mmal"
)

var stillFormat = mmal.Format{Encoding: mmal.EncodingRGB24, Width: 32, Height: 16}

type segment struct {
	data  []byte
	flags mmal.Flags
}

func newCamera(t *testing.T, opts SensorOptions) *mmal.Component {
	t.Helper()
	c, err := mmal.NewComponent("camera", NewSensor(opts))
	require.NoError(t, err)
	require.NoError(t, c.Configure([]mmal.PortFormat{{Port: c.Output(CapturePort), Format: stillFormat}}, params.Defaults()))
	c.DrainTimeout = time.Second
	return c
}

// enableStill enables the capture port with count buffers and forwards every
// returned segment to the channel.
func enableStill(t *testing.T, c *mmal.Component, count int) (*mmal.Pool, chan segment) {
	t.Helper()
	p := c.Output(CapturePort)
	pool, err := p.CreatePool(count, 0)
	require.NoError(t, err)
	segs := make(chan segment, 16)
	require.NoError(t, p.Enable(func(p *mmal.Port, b *mmal.Buffer) {
		if b.Length > 0 {
			segs <- segment{append([]byte(nil), b.Bytes()...), b.Flags}
		}
		b.Pool().Release(b)
	}))
	for {
		b, ok := pool.Acquire()
		if !ok {
			break
		}
		require.NoError(t, p.Submit(b))
	}
	return pool, segs
}

func teardown(t *testing.T, c *mmal.Component, pool *mmal.Pool) {
	t.Helper()
	require.NoError(t, c.Output(CapturePort).Disable())
	require.NoError(t, pool.Destroy())
	require.NoError(t, c.Destroy())
}

func TestSensorCheckFormat(t *testing.T) {
	c, err := mmal.NewComponent("camera", NewSensor(SensorOptions{}))
	require.NoError(t, err)
	defer c.Destroy()
	d := c.Driver()

	req, err := d.CheckFormat(c.Output(CapturePort), stillFormat)
	require.NoError(t, err)
	assert.Equal(t, mmal.Requirements{NumMin: 1, SizeMin: 1024, NumRecommended: 1, SizeRecommended: 32 * 16 * 3}, req)

	opaque := mmal.Format{Encoding: mmal.EncodingOpaque, Width: 1024, Height: 768}
	_, err = d.CheckFormat(c.Output(CapturePort), opaque)
	assert.True(t, errors.Is(err, mmal.ErrUnsupportedFormat))
	req, err = d.CheckFormat(c.Output(PreviewPort), opaque)
	require.NoError(t, err)
	assert.Equal(t, 3, req.NumRecommended)

	for _, f := range []mmal.Format{
		{Encoding: mmal.EncodingRGB24, Width: MaxWidth + 1, Height: 16},
		{Encoding: mmal.EncodingI420, Width: 16, Height: 0},
		{Encoding: "JPEG", Width: 16, Height: 16},
	} {
		_, err := d.CheckFormat(c.Output(CapturePort), f)
		assert.True(t, errors.Is(err, mmal.ErrUnsupportedFormat), "%v", f)
	}
}

func TestSensorConfigureValidates(t *testing.T) {
	c := newCamera(t, SensorOptions{})
	defer c.Destroy()

	bad := params.Defaults()
	bad.Saturation = 500
	err := c.Configure(nil, bad)
	assert.True(t, errors.Is(err, mmal.ErrInvalidParameter))
	assert.Equal(t, params.Defaults(), c.Parameters())

	err = c.Configure(nil, "bright")
	assert.True(t, errors.Is(err, mmal.ErrInvalidParameter))

	good := params.Defaults()
	good.HFlip = true
	require.NoError(t, c.Configure(nil, &good))
}

func TestSensorDeliversStillInSegments(t *testing.T) {
	c := newCamera(t, SensorOptions{})
	pool, segs := enableStill(t, c, 2)
	p := c.Output(CapturePort)
	require.Equal(t, 1024, pool.BufferSize())

	require.NoError(t, p.TriggerCapture())
	var got []byte
	var first, last segment
	for i := 0; i < 2; i++ {
		select {
		case s := <-segs:
			if i == 0 {
				first = s
			}
			last = s
			got = append(got, s.data...)
		case <-time.After(time.Second):
			t.Fatal("still not delivered")
		}
	}
	assert.False(t, first.flags.Has(mmal.FlagFrameEnd))
	assert.True(t, last.flags.Has(mmal.FlagFrameEnd))
	assert.Equal(t, RenderPattern(stillFormat, params.Defaults()), got)

	teardown(t, c, pool)
}

func TestSensorAppliesParameters(t *testing.T) {
	c := newCamera(t, SensorOptions{})
	p := c.Output(CapturePort)
	flipped := params.Defaults()
	flipped.VFlip = true
	require.NoError(t, c.Configure(nil, flipped))

	pool, segs := enableStill(t, c, 2)
	require.NoError(t, p.TriggerCapture())
	var got []byte
	for len(got) < stillFormat.FrameSize() {
		select {
		case s := <-segs:
			got = append(got, s.data...)
		case <-time.After(time.Second):
			t.Fatal("still not delivered")
		}
	}
	assert.Equal(t, RenderPattern(stillFormat, flipped), got)
	assert.NotEqual(t, RenderPattern(stillFormat, params.Defaults()), got)

	teardown(t, c, pool)
}

func TestSensorRejectsOverlappingCapture(t *testing.T) {
	c := newCamera(t, SensorOptions{Exposure: time.Hour})
	pool, _ := enableStill(t, c, 1)
	p := c.Output(CapturePort)

	require.NoError(t, p.TriggerCapture())
	err := p.TriggerCapture()
	assert.True(t, errors.Is(err, mmal.ErrPortState))

	// Disabling aborts the pending still and returns the primed buffer.
	teardown(t, c, pool)
}

func TestSensorCaptureFailure(t *testing.T) {
	boom := errors.New("sensor fault")
	c := newCamera(t, SensorOptions{Fail: boom})
	pool, _ := enableStill(t, c, 1)
	err := c.Output(CapturePort).TriggerCapture()
	assert.True(t, errors.Is(err, boom))
	teardown(t, c, pool)
}

func TestSensorAbortsPartialStill(t *testing.T) {
	c := newCamera(t, SensorOptions{})
	pool, segs := enableStill(t, c, 1)
	p := c.Output(CapturePort)

	// One buffer carries only the first segment; the rest never arrives.
	require.NoError(t, p.TriggerCapture())
	select {
	case s := <-segs:
		assert.Len(t, s.data, 1024)
		assert.False(t, s.flags.Has(mmal.FlagFrameEnd))
	case <-time.After(time.Second):
		t.Fatal("first segment not delivered")
	}
	teardown(t, c, pool)
}

func TestViewfinderFeedsNullSink(t *testing.T) {
	cam := newCamera(t, SensorOptions{Viewfinder: time.Millisecond})
	preview := cam.Output(PreviewPort)
	require.NoError(t, cam.Configure([]mmal.PortFormat{{
		Port:   preview,
		Format: mmal.Format{Encoding: mmal.EncodingOpaque, Width: 1024, Height: 768},
	}}, nil))

	null := NewNullSink()
	sink, err := mmal.NewComponent("null", null)
	require.NoError(t, err)
	require.NoError(t, sink.Configure(nil, nil))

	conn, err := mmal.Connect(preview, sink.Input(0), mmal.PolicyDropNewest)
	require.NoError(t, err)
	require.NoError(t, conn.Enable())
	assert.Eventually(t, func() bool { return null.Consumed() >= 5 }, 2*time.Second, time.Millisecond)

	require.NoError(t, conn.Disable())
	require.NoError(t, conn.Disconnect())
	require.NoError(t, sink.Destroy())
	require.NoError(t, cam.Destroy())
}
