package params

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// names maps mode values to their command line names. The first entry of
// each table is listed first in help output.
type names []string

func (n names) lookup(s string) (int, bool) {
	for i, name := range n {
		if strings.EqualFold(name, s) {
			return i, true
		}
	}
	return 0, false
}

func (n names) String() string {
	return strings.Join(n, ",")
}

func (n names) format(v int, kind string) string {
	if v < 0 || v >= len(n) {
		return fmt.Sprintf("%s(%d)", kind, v)
	}
	return n[v]
}

type ExposureMode int

const (
	ExposureOff ExposureMode = iota
	ExposureAuto
	ExposureNight
	ExposureNightPreview
	ExposureBacklight
	ExposureSpotlight
	ExposureSports
	ExposureSnow
	ExposureBeach
	ExposureVeryLong
	ExposureFixedFPS
	ExposureAntishake
	ExposureFireworks
)

var exposureNames = names{"off", "auto", "night", "nightpreview", "backlight",
	"spotlight", "sports", "snow", "beach", "verylong", "fixedfps", "antishake", "fireworks"}

func (m ExposureMode) String() string { return exposureNames.format(int(m), "ExposureMode") }

func (m ExposureMode) MarshalText() ([]byte, error) { return marshal(exposureNames, int(m), "exposure") }

func (m *ExposureMode) UnmarshalText(text []byte) error {
	v, err := unmarshal(exposureNames, text, "exposure")
	if err != nil {
		return err
	}
	*m = ExposureMode(v)
	return nil
}

type AWBMode int

const (
	AWBOff AWBMode = iota
	AWBAuto
	AWBSun
	AWBCloud
	AWBShade
	AWBTungsten
	AWBFluorescent
	AWBIncandescent
	AWBFlash
	AWBHorizon
)

var awbNames = names{"off", "auto", "sun", "cloud", "shade", "tungsten",
	"fluorescent", "incandescent", "flash", "horizon"}

func (m AWBMode) String() string { return awbNames.format(int(m), "AWBMode") }

func (m AWBMode) MarshalText() ([]byte, error) { return marshal(awbNames, int(m), "awb") }

func (m *AWBMode) UnmarshalText(text []byte) error {
	v, err := unmarshal(awbNames, text, "awb")
	if err != nil {
		return err
	}
	*m = AWBMode(v)
	return nil
}

type ImageEffect int

const (
	EffectNone ImageEffect = iota
	EffectNegative
	EffectSolarise
	EffectSketch
	EffectDenoise
	EffectEmboss
	EffectOilPaint
	EffectHatch
	EffectGPen
	EffectPastel
	EffectWatercolour
	EffectFilm
	EffectBlur
	EffectSaturation
	EffectColourSwap
	EffectWashedOut
	EffectPosterise
	EffectColourPoint
	EffectColourBalance
	EffectCartoon
)

var effectNames = names{"none", "negative", "solarise", "sketch", "denoise",
	"emboss", "oilpaint", "hatch", "gpen", "pastel", "watercolour", "film", "blur",
	"saturation", "colourswap", "washedout", "posterise", "colourpoint",
	"colourbalance", "cartoon"}

func (e ImageEffect) String() string { return effectNames.format(int(e), "ImageEffect") }

func (e ImageEffect) MarshalText() ([]byte, error) { return marshal(effectNames, int(e), "image effect") }

func (e *ImageEffect) UnmarshalText(text []byte) error {
	v, err := unmarshal(effectNames, text, "image effect")
	if err != nil {
		return err
	}
	*e = ImageEffect(v)
	return nil
}

type MeteringMode int

const (
	MeteringAverage MeteringMode = iota
	MeteringSpot
	MeteringBacklit
	MeteringMatrix
)

var meteringNames = names{"average", "spot", "backlit", "matrix"}

func (m MeteringMode) String() string { return meteringNames.format(int(m), "MeteringMode") }

func (m MeteringMode) MarshalText() ([]byte, error) { return marshal(meteringNames, int(m), "metering") }

func (m *MeteringMode) UnmarshalText(text []byte) error {
	v, err := unmarshal(meteringNames, text, "metering")
	if err != nil {
		return err
	}
	*m = MeteringMode(v)
	return nil
}

func marshal(n names, v int, kind string) ([]byte, error) {
	if v < 0 || v >= len(n) {
		return nil, errors.Errorf("invalid %s mode %d", kind, v)
	}
	return []byte(n[v]), nil
}

func unmarshal(n names, text []byte, kind string) (int, error) {
	v, ok := n.lookup(string(text))
	if !ok {
		return 0, errors.Errorf("unknown %s mode %q, options are %v", kind, text, n)
	}
	return v, nil
}
