// Package params holds the image parameters applied to the camera component.
package params

import (
	"github.com/pkg/errors"

	"stillcam/mmal"
)

// ColourEffects fixes the chroma planes to U and V when enabled.
type ColourEffects struct {
	Enable bool `yaml:"enable" json:"enable"`
	U      int  `yaml:"u" json:"u"`
	V      int  `yaml:"v" json:"v"`
}

// Parameters is the full set of image parameters for the camera.
type Parameters struct {
	Sharpness            int           `yaml:"sharpness" json:"sharpness"`
	Contrast             int           `yaml:"contrast" json:"contrast"`
	Brightness           int           `yaml:"brightness" json:"brightness"`
	Saturation           int           `yaml:"saturation" json:"saturation"`
	ISO                  int           `yaml:"iso" json:"iso"`
	VideoStabilisation   bool          `yaml:"vstab" json:"vstab"`
	ExposureCompensation int           `yaml:"ev" json:"ev"`
	ExposureMode         ExposureMode  `yaml:"exposure" json:"exposure"`
	AWBMode              AWBMode       `yaml:"awb" json:"awb"`
	ImageEffect          ImageEffect   `yaml:"imxfx" json:"imxfx"`
	ColourEffects        ColourEffects `yaml:"colfx" json:"colfx"`
	MeteringMode         MeteringMode  `yaml:"metering" json:"metering"`
	Rotation             int           `yaml:"rotation" json:"rotation"`
	HFlip                bool          `yaml:"hflip" json:"hflip"`
	VFlip                bool          `yaml:"vflip" json:"vflip"`
	ROI                  ROI           `yaml:"roi" json:"roi"`
	// ShutterSpeed is in microseconds, 0 is automatic.
	ShutterSpeed int `yaml:"shutter" json:"shutter"`
}

func Defaults() Parameters {
	return Parameters{
		Brightness:   50,
		ExposureMode: ExposureAuto,
		AWBMode:      AWBAuto,
		ImageEffect:  EffectNone,
		MeteringMode: MeteringAverage,
		ROI:          FullFrame,
	}
}

func checkRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return errors.Wrapf(mmal.ErrInvalidParameter, "%s %d out of range [%d,%d]", name, v, lo, hi)
	}
	return nil
}

// Validate returns the first parameter out of range.
func (p *Parameters) Validate() error {
	checks := []struct {
		name       string
		v, lo, hi int
	}{
		{"sharpness", p.Sharpness, -100, 100},
		{"contrast", p.Contrast, -100, 100},
		{"brightness", p.Brightness, 0, 100},
		{"saturation", p.Saturation, -100, 100},
		{"ev", p.ExposureCompensation, -10, 10},
		{"rotation", p.Rotation, 0, 359},
		{"exposure", int(p.ExposureMode), 0, len(exposureNames) - 1},
		{"awb", int(p.AWBMode), 0, len(awbNames) - 1},
		{"imxfx", int(p.ImageEffect), 0, len(effectNames) - 1},
		{"metering", int(p.MeteringMode), 0, len(meteringNames) - 1},
		{"colfx u", p.ColourEffects.U, 0, 255},
		{"colfx v", p.ColourEffects.V, 0, 255},
		{"shutter", p.ShutterSpeed, 0, 1<<31 - 1},
	}
	for _, c := range checks {
		if err := checkRange(c.name, c.v, c.lo, c.hi); err != nil {
			return err
		}
	}
	if p.ISO != 0 {
		if err := checkRange("iso", p.ISO, 100, 800); err != nil {
			return err
		}
	}
	return p.ROI.validate()
}
